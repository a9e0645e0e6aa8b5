package transform

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/etl-flows/internal/core"
)

var now = time.Date(2025, 5, 20, 10, 30, 0, 0, time.UTC)

func deviceTable(rows ...core.Row) *core.Table {
	tbl := core.NewTable(core.Schema{
		{Name: "hostname", Type: core.TypeString},
		{Name: "operating_system", Type: core.TypeString},
		{Name: "description", Type: core.TypeString},
		{Name: "patches_approved_pending", Type: core.TypeInt},
		{Name: "patches_installed", Type: core.TypeInt},
		{Name: "last_audit_date", Type: core.TypeTimestamp},
		{Name: "adjusted_last_seen", Type: core.TypeTimestamp},
		{Name: "last_reboot", Type: core.TypeTimestamp},
	})
	tbl.Append(rows...)
	return tbl
}

func TestDevicesDerivedColumns(t *testing.T) {
	tbl := deviceTable(
		core.Row{
			"hostname":                 "EC2AMAZ-4KQ1",
			"operating_system":         "Microsoft Windows 11 Pro 10.0.22631",
			"patches_approved_pending": int64(1),
			"patches_installed":        int64(3),
			"last_audit_date":          now.AddDate(0, 0, -40),
			"adjusted_last_seen":       now.AddDate(0, 0, -1),
		},
		core.Row{
			"hostname":         "web-01",
			"operating_system": "Linux Ubuntu 22.04.3 LTS",
			"description":      "null",
		},
	)

	out, err := Devices(tbl, DevicePolicy{Now: now})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	win := out.Rows[0]
	assert.Equal(t, 75.0, win["patch_status_percentage"])
	assert.Equal(t, true, win["no_audit_last_30_days"])
	assert.Equal(t, false, win["offline_last_30_days"])
	assert.Equal(t, false, win["no_reboot_last_30_days"])
	assert.Equal(t, "10.0.22631", win["os_build"])
	assert.Equal(t, "Microsoft Windows 11 Pro", win["os_name"])
	assert.Equal(t, "Microsoft", win["os_type"])
	assert.Equal(t, "Workstation", win["os_release_edition"])
	assert.Equal(t, false, win["os_is_lts"])
	assert.Equal(t, "11", win["release_info"])
	assert.Equal(t, "AWS", win["cloud_category"])
	assert.Equal(t, "Workspace", win["cloud_type"])

	lin := out.Rows[1]
	assert.Equal(t, 0.0, lin["patch_status_percentage"])
	assert.Equal(t, "Linux", lin["os_type"])
	assert.Nil(t, lin["os_release_edition"])
	assert.Equal(t, true, lin["os_is_lts"])
	assert.Equal(t, "22.04.3", lin["os_build"])
	assert.Nil(t, lin["description"])
	assert.Nil(t, lin["cloud_category"])
	assert.Nil(t, lin["cloud_type"])

	for _, name := range []string{"patch_status_percentage", "no_audit_last_30_days", "os_type", "cloud_type"} {
		assert.True(t, out.Schema.Has(name), name)
	}
}

func TestDevicesStalenessWindow(t *testing.T) {
	tbl := deviceTable(core.Row{"last_reboot": now.AddDate(0, 0, -10)})

	out, err := Devices(tbl, DevicePolicy{Now: now, StaleAfterDays: 7})
	require.NoError(t, err)
	assert.Equal(t, true, out.Rows[0]["no_reboot_last_7_days"])
	assert.False(t, out.Schema.Has("no_reboot_last_30_days"))
}

func TestWindowsServerEditions(t *testing.T) {
	cases := map[string]string{
		"Microsoft Windows Server 2019 Standard 10.0.17763":    "Standard",
		"Microsoft Windows 10 Enterprise 10.0.19045":           "Enterprise",
		"Microsoft Windows 10 IoT Core 10.0.17763":             "IoT",
		"Microsoft Windows Server 2012 R2 Datacenter 6.3.9600": "Standard",
	}
	for name, want := range cases {
		assert.Equal(t, want, windowsEdition(strings.ToLower(name)), name)
	}
	assert.Equal(t, "2012 R2", osRelease.FirstMatch("Microsoft Windows Server 2012 R2 Datacenter 6.3.9600"))
	assert.Equal(t, "2019", osRelease.FirstMatch("Microsoft Windows Server 2019 Standard 10.0.17763"))
}

func TestOSTypeFallback(t *testing.T) {
	assert.Equal(t, "MacOS", osType("macos ventura 13.6.1"))
	assert.Equal(t, "Unknown", osType(""))
}
