package datto

import (
	"fmt"
	"strings"
	"time"

	"github.com/nucleus/etl-flows/internal/core"
)

// Parent is the account or site a sub-resource was listed under. The API does
// not repeat it on every element, so models receive it explicitly.
type Parent struct {
	UID  string
	Name string
}

// AccountScope marks variables defined at account rather than site level.
var AccountScope = Parent{UID: "[ACCOUNT]", Name: "[ACCOUNT]"}

func col(name string, t core.ColumnType) core.Column { return core.Column{Name: name, Type: t} }

// object returns a nested block, empty when absent and an error when the
// field holds something other than an object.
func object(rec core.Record, key string) (map[string]any, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, core.Fieldf(key, "is %T, want object", v)
	}
	return m, nil
}

func requireString(rec core.Record, key string) (string, error) {
	s, ok := rec[key].(string)
	if !ok || s == "" {
		return "", core.Fieldf(key, "missing identifier")
	}
	return s, nil
}

func orParent(v any, fallback string) any {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	if fallback == "" {
		return nil
	}
	return fallback
}

// =============================================================================
// ACCOUNT
// =============================================================================

var accountSchema = core.Schema{
	col("id", core.TypeInt),
	col("uid", core.TypeString),
	col("name", core.TypeString),
	col("currency", core.TypeString),
	col("billing_email", core.TypeString),
	col("device_limit", core.TypeInt),
	col("time_zone", core.TypeString),
	col("number_of_devices", core.TypeInt),
	col("number_of_online_devices", core.TypeInt),
	col("number_of_offline_devices", core.TypeInt),
	col("number_of_on_demand_devices", core.TypeInt),
	col("number_of_managed_devices", core.TypeInt),
}

// AccountModel maps the account metadata object.
func AccountModel() core.Model {
	return core.Model{Entity: "account", Schema: accountSchema, Map: func(rec core.Record) (core.Row, error) {
		uid, err := requireString(rec, "uid")
		if err != nil {
			return nil, err
		}
		descriptor, err := object(rec, "descriptor")
		if err != nil {
			return nil, err
		}
		status, err := object(rec, "devicesStatus")
		if err != nil {
			return nil, err
		}
		return core.Row{
			"id":                          core.Int(rec["id"]),
			"uid":                         uid,
			"name":                        core.String(rec["name"]),
			"currency":                    core.String(rec["currency"]),
			"billing_email":               core.String(descriptor["billingEmail"]),
			"device_limit":                core.Int(descriptor["deviceLimit"]),
			"time_zone":                   core.String(descriptor["timeZone"]),
			"number_of_devices":           core.Int(status["numberOfDevices"]),
			"number_of_online_devices":    core.Int(status["numberOfOnlineDevices"]),
			"number_of_offline_devices":   core.Int(status["numberOfOfflineDevices"]),
			"number_of_on_demand_devices": core.Int(status["numberOfOnDemandDevices"]),
			"number_of_managed_devices":   core.Int(status["numberOfManagedDevices"]),
		}, nil
	}}
}

// AccountParent reads the account identity out of an account table.
func AccountParent(t *core.Table) (Parent, error) {
	if t.Len() == 0 {
		return Parent{}, fmt.Errorf("account table is empty")
	}
	uid, _ := t.Rows[0]["uid"].(string)
	name, _ := t.Rows[0]["name"].(string)
	return Parent{UID: uid, Name: name}, nil
}

// =============================================================================
// SITES
// =============================================================================

var siteSchema = core.Schema{
	col("id", core.TypeInt),
	col("uid", core.TypeString),
	col("account_uid", core.TypeString),
	col("name", core.TypeString),
	col("description", core.TypeString),
	col("notes", core.TypeString),
	col("on_demand", core.TypeBool),
	col("splashtop_auto_install", core.TypeBool),
	col("proxy_settings_host", core.TypeString),
	col("proxy_settings_password", core.TypeString),
	col("proxy_settings_type", core.TypeString),
	col("proxy_settings_port", core.TypeInt),
	col("proxy_settings_username", core.TypeString),
	col("number_of_devices", core.TypeInt),
	col("number_of_online_devices", core.TypeInt),
	col("number_of_offline_devices", core.TypeInt),
	col("autotask_company_name", core.TypeString),
	col("autotask_company_id", core.TypeString),
	col("portal_url", core.TypeString),
}

const maskedPassword = "*****"

// SiteModel maps one site. Proxy settings are flattened generically and the
// proxy password is masked.
func SiteModel() core.Model {
	return core.Model{Entity: "site", Schema: siteSchema, Map: func(rec core.Record) (core.Row, error) {
		uid, err := requireString(rec, "uid")
		if err != nil {
			return nil, err
		}
		proxy, err := object(rec, "proxySettings")
		if err != nil {
			return nil, err
		}
		status, err := object(rec, "devicesStatus")
		if err != nil {
			return nil, err
		}

		row := core.Row{
			"id":                        core.Int(rec["id"]),
			"uid":                       uid,
			"account_uid":               core.String(rec["accountUid"]),
			"name":                      core.String(rec["name"]),
			"description":               core.String(rec["description"]),
			"notes":                     core.String(rec["notes"]),
			"on_demand":                 core.Bool(rec["onDemand"]),
			"splashtop_auto_install":    core.Bool(rec["splashtopAutoInstall"]),
			"number_of_devices":         core.Int(status["numberOfDevices"]),
			"number_of_online_devices":  core.Int(status["numberOfOnlineDevices"]),
			"number_of_offline_devices": core.Int(status["numberOfOfflineDevices"]),
			"autotask_company_name":     core.String(rec["autotaskCompanyName"]),
			"autotask_company_id":       core.String(rec["autotaskCompanyId"]),
			"portal_url":                core.String(rec["portalUrl"]),
		}
		for k, v := range core.Flatten("proxy_settings", proxy) {
			if siteSchema.Has(k) {
				row[k] = v
			}
		}
		row["proxy_settings_port"] = core.Int(proxy["port"])
		if pw, ok := proxy["password"].(string); ok && pw != "" {
			row["proxy_settings_password"] = maskedPassword
		} else {
			row["proxy_settings_password"] = nil
		}
		return row, nil
	}}
}

// SiteParents lists the identity of every site in a sites table.
func SiteParents(t *core.Table) []Parent {
	out := make([]Parent, 0, t.Len())
	for _, r := range t.Rows {
		uid, _ := r["uid"].(string)
		if uid == "" {
			continue
		}
		name, _ := r["name"].(string)
		out = append(out, Parent{UID: uid, Name: name})
	}
	return out
}

// =============================================================================
// ALERTS
// =============================================================================

var alertSchema = core.Schema{
	col("alert_uid", core.TypeString),
	col("priority", core.TypeString),
	col("diagnostics", core.TypeString),
	col("resolved", core.TypeBool),
	col("resolved_by", core.TypeString),
	col("resolved_on", core.TypeTimestamp),
	col("muted", core.TypeBool),
	col("ticket_number", core.TypeString),
	col("timestamp", core.TypeTimestamp),
	col("alert_context", core.TypeJSON),
	col("response_actions", core.TypeJSON),
	col("auto_resolve_mins", core.TypeInt),
	col("device_uid", core.TypeString),
	col("hostname", core.TypeString),
	col("site_uid", core.TypeString),
	col("site_name", core.TypeString),
	col("creates_ticket", core.TypeBool),
	col("sends_emails", core.TypeBool),
}

// AlertModel maps one open or resolved alert. Site identity falls back to
// the parent when the source block omits it.
func AlertModel(parent Parent) core.Model {
	return core.Model{Entity: "alert", Schema: alertSchema, Map: func(rec core.Record) (core.Row, error) {
		uid, err := requireString(rec, "alertUid")
		if err != nil {
			return nil, err
		}
		source, err := object(rec, "alertSourceInfo")
		if err != nil {
			return nil, err
		}
		monitor, err := object(rec, "alertMonitorInfo")
		if err != nil {
			return nil, err
		}
		return core.Row{
			"alert_uid":         uid,
			"priority":          core.String(rec["priority"]),
			"diagnostics":       core.String(rec["diagnostics"]),
			"resolved":          core.Bool(rec["resolved"]),
			"resolved_by":       core.String(rec["resolvedBy"]),
			"resolved_on":       core.EpochMillis(rec["resolvedOn"]),
			"muted":             core.Bool(rec["muted"]),
			"ticket_number":     core.String(rec["ticketNumber"]),
			"timestamp":         core.EpochMillis(rec["timestamp"]),
			"alert_context":     rec["alertContext"],
			"response_actions":  rec["responseActions"],
			"auto_resolve_mins": core.Int(rec["autoresolveMins"]),
			"device_uid":        core.String(source["deviceUid"]),
			"hostname":          core.UpperHost(source["deviceName"]),
			"site_uid":          orParent(source["siteUid"], parent.UID),
			"site_name":         orParent(source["siteName"], parent.Name),
			"creates_ticket":    core.Bool(monitor["createsTicket"]),
			"sends_emails":      core.Bool(monitor["sendsEmails"]),
		}, nil
	}}
}

// =============================================================================
// VARIABLES
// =============================================================================

var variableSchema = core.Schema{
	col("id", core.TypeInt),
	col("name", core.TypeString),
	col("value", core.TypeString),
	col("masked", core.TypeBool),
	col("site_uid", core.TypeString),
	col("site_name", core.TypeString),
}

// VariableModel maps one account or site variable under parent. Masked
// values are reported by the API already redacted.
func VariableModel(parent Parent) core.Model {
	return core.Model{Entity: "variable", Schema: variableSchema, Map: func(rec core.Record) (core.Row, error) {
		return core.Row{
			"id":        core.Int(rec["id"]),
			"name":      core.String(rec["name"]),
			"value":     core.String(rec["value"]),
			"masked":    core.Bool(rec["masked"]),
			"site_uid":  orParent(parent.UID, ""),
			"site_name": orParent(parent.Name, ""),
		}, nil
	}}
}

// =============================================================================
// ACTIVITY LOGS
// =============================================================================

var activitySchema = core.Schema{
	col("id", core.TypeString),
	col("entity", core.TypeString),
	col("category", core.TypeString),
	col("action", core.TypeString),
	col("date", core.TypeTimestamp),
	col("site_id", core.TypeInt),
	col("site_name", core.TypeString),
	col("device_id", core.TypeInt),
	col("hostname", core.TypeString),
	col("user", core.TypeJSON),
	col("details", core.TypeString),
	col("has_std_out", core.TypeBool),
	col("has_std_err", core.TypeBool),
}

// ActivityModel maps one activity-log entry. Details stay as JSON text for
// the activity transform.
func ActivityModel() core.Model {
	return core.Model{Entity: "activity", Schema: activitySchema, Map: func(rec core.Record) (core.Row, error) {
		site, err := object(rec, "site")
		if err != nil {
			return nil, err
		}
		details, err := core.JSONText(rec["details"])
		if err != nil {
			return nil, core.Fieldf("details", "%v", err)
		}
		return core.Row{
			"id":          core.String(rec["id"]),
			"entity":      core.Lower(rec["entity"]),
			"category":    core.String(rec["category"]),
			"action":      core.String(rec["action"]),
			"date":        core.EpochSeconds(rec["date"]),
			"site_id":     core.Int(site["id"]),
			"site_name":   core.String(site["name"]),
			"device_id":   core.Int(rec["deviceId"]),
			"hostname":    core.UpperHost(rec["hostname"]),
			"user":        rec["user"],
			"details":     details,
			"has_std_out": core.Bool(rec["hasStdOut"]),
			"has_std_err": core.Bool(rec["hasStdErr"]),
		}, nil
	}}
}

// =============================================================================
// DEVICES
// =============================================================================

const udfCount = 30

var deviceSchema = func() core.Schema {
	s := core.Schema{
		col("id", core.TypeInt),
		col("uid", core.TypeString),
		col("site_id", core.TypeInt),
		col("site_uid", core.TypeString),
		col("site_name", core.TypeString),
		col("hostname", core.TypeString),
		col("int_ip_address", core.TypeString),
		col("ext_ip_address", core.TypeString),
		col("operating_system", core.TypeString),
		col("last_logged_in_user", core.TypeString),
		col("domain", core.TypeString),
		col("cag_version", core.TypeString),
		col("display_version", core.TypeString),
		col("description", core.TypeString),
		col("a_64_bit", core.TypeBool),
		col("reboot_required", core.TypeBool),
		col("online", core.TypeBool),
		col("suspended", core.TypeBool),
		col("deleted", core.TypeBool),
		col("last_seen", core.TypeTimestamp),
		col("last_reboot", core.TypeTimestamp),
		col("last_audit_date", core.TypeTimestamp),
		col("creation_date", core.TypeTimestamp),
		col("portal_url", core.TypeString),
		col("device_class", core.TypeString),
		col("snmp_enabled", core.TypeBool),
		col("software_status", core.TypeString),
		col("web_remote_url", core.TypeString),
		col("warranty_date", core.TypeString),
		col("category", core.TypeString),
		col("type", core.TypeString),
		col("is_server", core.TypeBool),
		col("antivirus_product", core.TypeString),
		col("antivirus_status", core.TypeString),
		col("patch_status", core.TypeString),
		col("patches_approved_pending", core.TypeInt),
		col("patches_not_approved", core.TypeInt),
		col("patches_installed", core.TypeInt),
		col("adjusted_last_seen", core.TypeTimestamp),
	}
	for i := 1; i <= udfCount; i++ {
		s = append(s, col(fmt.Sprintf("udf%d", i), core.TypeString))
	}
	return append(s, col("local_timezone", core.TypeString))
}()

// DeviceModel maps one device. extractedAt stands in for last_seen on
// devices that are online right now.
func DeviceModel(extractedAt time.Time) core.Model {
	extractedAt = extractedAt.UTC().Truncate(time.Second)
	return core.Model{Entity: "device", Schema: deviceSchema, Map: func(rec core.Record) (core.Row, error) {
		uid, err := requireString(rec, "uid")
		if err != nil {
			return nil, err
		}
		deviceType, err := object(rec, "deviceType")
		if err != nil {
			return nil, err
		}
		antivirus, err := object(rec, "antivirus")
		if err != nil {
			return nil, err
		}
		patching, err := object(rec, "patchManagement")
		if err != nil {
			return nil, err
		}
		udf, err := object(rec, "udf")
		if err != nil {
			return nil, err
		}

		row := core.Row{
			"id":                       core.Int(rec["id"]),
			"uid":                      uid,
			"site_id":                  core.Int(rec["siteId"]),
			"site_uid":                 core.String(rec["siteUid"]),
			"site_name":                core.String(rec["siteName"]),
			"hostname":                 core.UpperHost(rec["hostname"]),
			"int_ip_address":           core.String(rec["intIpAddress"]),
			"ext_ip_address":           core.String(rec["extIpAddress"]),
			"operating_system":         core.String(rec["operatingSystem"]),
			"last_logged_in_user":      core.String(rec["lastLoggedInUser"]),
			"domain":                   core.String(rec["domain"]),
			"cag_version":              core.String(rec["cagVersion"]),
			"display_version":          core.String(rec["displayVersion"]),
			"description":              core.String(rec["description"]),
			"a_64_bit":                 core.Bool(rec["a64Bit"]),
			"reboot_required":          core.Bool(rec["rebootRequired"]),
			"online":                   core.Bool(rec["online"]),
			"suspended":                core.Bool(rec["suspended"]),
			"deleted":                  core.Bool(rec["deleted"]),
			"last_seen":                core.EpochMillis(rec["lastSeen"]),
			"last_reboot":              core.EpochMillis(rec["lastReboot"]),
			"last_audit_date":          core.EpochMillis(rec["lastAuditDate"]),
			"creation_date":            core.EpochMillis(rec["creationDate"]),
			"portal_url":               core.String(rec["portalUrl"]),
			"device_class":             core.String(rec["deviceClass"]),
			"snmp_enabled":             core.Bool(rec["snmpEnabled"]),
			"software_status":          core.String(rec["softwareStatus"]),
			"web_remote_url":           core.String(rec["webRemoteUrl"]),
			"warranty_date":            core.String(rec["warrantyDate"]),
			"category":                 core.String(deviceType["category"]),
			"type":                     core.String(deviceType["type"]),
			"antivirus_product":        core.String(antivirus["antivirusProduct"]),
			"antivirus_status":         nonEmpty(core.SplitCamel(antivirus["antivirusStatus"])),
			"patch_status":             nonEmpty(core.SplitCamel(patching["patchStatus"])),
			"patches_approved_pending": core.Int(patching["patchesApprovedPending"]),
			"patches_not_approved":     core.Int(patching["patchesNotApproved"]),
			"patches_installed":        core.Int(patching["patchesInstalled"]),
		}

		category, _ := deviceType["category"].(string)
		row["is_server"] = strings.Contains(strings.ToLower(category), "server")

		if online, _ := row["online"].(bool); online {
			row["adjusted_last_seen"] = extractedAt
		} else {
			row["adjusted_last_seen"] = row["last_seen"]
		}

		for i := 1; i <= udfCount; i++ {
			key := fmt.Sprintf("udf%d", i)
			row[key] = core.String(udf[key])
		}
		row["local_timezone"] = row["udf10"]
		return row, nil
	}}
}

func nonEmpty(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}
