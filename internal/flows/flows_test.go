package flows

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/connector/jdbc"
	"github.com/nucleus/etl-flows/internal/connector/minio"
	"github.com/nucleus/etl-flows/internal/orchestration"
	"github.com/nucleus/etl-flows/internal/vault"
)

var runAt = time.Date(2025, 5, 20, 10, 30, 15, 0, time.UTC)

const bucket = "staging"

type env struct {
	dir        string
	store      *minio.LocalStore
	db         *sql.DB
	mock       sqlmock.Sqlmock
	out        *bytes.Buffer
	secrets    vault.Static
	deps       *Deps
	storeCalls atomic.Int32
	dbCalls    atomic.Int32
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store := minio.NewLocalStore(filepath.Join(dir, "objects"))
	require.NoError(t, store.MakeBucket(context.Background(), bucket))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		dir:   dir,
		store: store,
		db:    db,
		mock:  mock,
		out:   &bytes.Buffer{},
		secrets: vault.Static{
			"kv/minio":    {"url": "https://minio.local:9000", "accessKey": "a", "secretKey": "s"},
			"kv/postgres": {"POSTGRES_USER": "etl", "POSTGRES_URI": "db.local", "POSTGRES_PORT": "5432"},
		},
	}
	e.deps = &Deps{
		Settings: &config.Settings{
			ConfigDir:            dir,
			StaleAfterDays:       30,
			AlertLookbackDays:    7,
			ActivityLookbackDays: 45,
		},
		Secrets: e.secrets,
		Out:     e.out,
		Clock:   func() time.Time { return runAt },
		ObjectStore: func(context.Context, config.Task) (minio.ObjectStore, error) {
			e.storeCalls.Add(1)
			return store, nil
		},
		Database: func(context.Context, config.Task) (*jdbc.Postgres, error) {
			e.dbCalls.Add(1)
			return jdbc.NewPostgres(db, nil), nil
		},
	}
	return e
}

type taskDef struct {
	title   string
	secret  string
	dest    string
	options string
}

// writeTasks writes the task document of flow with every task under
// product/subject.
func (e *env) writeTasks(t *testing.T, flow, product, subject string, tasks ...taskDef) {
	t.Helper()
	var b strings.Builder
	b.WriteString("TASKS:\n")
	for _, td := range tasks {
		options := td.options
		if options == "" {
			options = "{}"
		}
		fmt.Fprintf(&b, `  - DETAILS:
      product: %s
      subject: %s
      task_title: %s
    DATA:
      origin: api
      source_method: stg_api
      destination: {%s}
      options: %s
    SECRETS:
      mount_point: kv
      path: %s
`, product, subject, td.title, td.dest, options, td.secret)
	}
	require.NoError(t, os.WriteFile(config.TaskFile(e.dir, flow), []byte(b.String()), 0o644))
}

func (e *env) objects(t *testing.T) []string {
	t.Helper()
	keys, err := e.store.ListPrefix(context.Background(), bucket, "")
	require.NoError(t, err)
	return keys
}

func ok() driver.Result { return sqlmock.NewResult(0, 0) }

// expectReplace queues the statements of one replace-table load.
func (e *env) expectReplace(createTable string, rows int) {
	e.mock.ExpectBegin()
	e.mock.ExpectExec("CREATE SCHEMA").WillReturnResult(ok())
	e.mock.ExpectExec("DROP TABLE").WillReturnResult(ok())
	e.mock.ExpectExec(regexp.QuoteMeta(createTable)).WillReturnResult(ok())
	if rows > 0 {
		prep := e.mock.ExpectPrepare("COPY")
		for i := 0; i <= rows; i++ {
			prep.ExpectExec().WillReturnResult(ok())
		}
	}
	e.mock.ExpectCommit()
	e.mock.ExpectClose()
}

func storeTask(title string) taskDef {
	return taskDef{title: title, secret: "minio", dest: "bucket: " + bucket + ", file_type: json"}
}

func tableTask(title, table string) taskDef {
	return taskDef{title: title, secret: "postgres", dest: "database: staging, schema: public, table: " + table}
}

func lines(data []byte) []string {
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestDefaultRegistryHasEveryFlow(t *testing.T) {
	assert.Equal(t, []string{
		MartDevices,
		MartMSPatchEvents,
		DattoAccount,
		DattoVariables,
		DattoSites,
		DattoActivityJob,
		DattoActivityPatch,
		DattoDevices,
		DattoMonitorsOpen,
		DattoMonitorsClosed,
		EndOfLifeWindows,
		ScalePadHardware,
	}, DefaultRegistry().List())
}

func TestRegistryRejectsDuplicatesAndUnknownFlows(t *testing.T) {
	r := NewRegistry()
	r.Register("a", func(context.Context, *Deps) error { return nil })
	assert.Panics(t, func() { r.Register("a", func(context.Context, *Deps) error { return nil }) })
	assert.NoError(t, r.Run(context.Background(), "a", &Deps{}))
	assert.ErrorContains(t, r.Run(context.Background(), "b", &Deps{}), "unknown flow: b")
}

func TestMissingTaskDocumentFailsBeforeAnyTask(t *testing.T) {
	e := newEnv(t)
	err := DefaultRegistry().Run(context.Background(), EndOfLifeWindows, e.deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read task file")
	assert.Empty(t, e.out.String())
	assert.Zero(t, e.storeCalls.Load())
}

func newEOLServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/windows.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"cycle":"11-24h2-e","releaseLabel":"11 24H2 (E)","releaseDate":"2024-10-01","eol":"2027-10-12","latest":"10.0.26100","lts":false},
			{"cycle":"10-22h2","releaseLabel":"10 22H2","releaseDate":"2022-10-18","eol":false,"latest":"10.0.19045"}
		]`))
	})
	mux.HandleFunc("/api/windows-server.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"cycle":"2022","releaseLabel":"2022","releaseDate":"2021-08-18","eol":"2031-10-14","lts":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndOfLifeWindowsFlow(t *testing.T) {
	e := newEnv(t)
	srv := newEOLServer(t)
	e.secrets["kv/endoflife"] = map[string]string{"base_uri": srv.URL}
	e.writeTasks(t, EndOfLifeWindows, "end_of_life_date", "microsoft_windows",
		taskDef{title: "extract windows lifecycle", secret: "endoflife"},
		taskDef{title: "transform windows lifecycle", secret: "endoflife"},
		storeTask("load windows lifecycle to minio"),
		tableTask("load windows lifecycle to postgres", "end_of_life_date_microsoft_windows"),
	)
	// 1 enterprise row, 1 standard row as three editions, 1 server LTS row
	// as three editions each split into LTSC and non-LTS.
	e.expectReplace(`CREATE TABLE "public"."stg_api_end_of_life_date_microsoft_windows" ("cycle" text`, 10)

	require.NoError(t, DefaultRegistry().Run(context.Background(), EndOfLifeWindows, e.deps))
	assert.NoError(t, e.mock.ExpectationsWereMet())

	keys := e.objects(t)
	require.Equal(t, []string{
		"end_of_life_date/microsoft_windows/stg_api/2025/05/20/stg_api_2025_05_20_103015_end_of_life_date_microsoft_windows.json",
	}, keys)
	data, err := e.store.GetObject(context.Background(), bucket, keys[0])
	require.NoError(t, err)
	rows := lines(data)
	require.Len(t, rows, 10)
	assert.Contains(t, rows[0], `"cycle":"11-24h2-e"`)
	assert.Contains(t, rows[0], `"_SOURCE_PRODUCT":"end_of_life_date"`)
	assert.Contains(t, rows[0], `"_UTC_EXTRACTION_DATETIME":"2025-05-20 10:30:15"`)
	assert.NotContains(t, rows[0], "release_label")

	out := e.out.String()
	assert.Contains(t, out, "FINAL RESULTS")
	assert.Contains(t, out, "extract windows lifecycle")
	assert.Contains(t, out, "load windows lifecycle to postgres")
}

func TestExtractFailureSkipsLoads(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	e.secrets["kv/endoflife"] = map[string]string{"base_uri": srv.URL}
	e.writeTasks(t, EndOfLifeWindows, "end_of_life_date", "microsoft_windows",
		taskDef{title: "extract windows lifecycle", secret: "endoflife"},
		taskDef{title: "transform windows lifecycle", secret: "endoflife"},
		storeTask("load windows lifecycle to minio"),
		tableTask("load windows lifecycle to postgres", "end_of_life_date_microsoft_windows"),
	)

	err := DefaultRegistry().Run(context.Background(), EndOfLifeWindows, e.deps)
	require.ErrorIs(t, err, orchestration.ErrFlowAborted)
	assert.Zero(t, e.storeCalls.Load())
	assert.Zero(t, e.dbCalls.Load())
	assert.Empty(t, e.objects(t))
	assert.Contains(t, e.out.String(), "500")
}

func TestMissingSecretAbortsFlow(t *testing.T) {
	e := newEnv(t)
	e.writeTasks(t, EndOfLifeWindows, "end_of_life_date", "microsoft_windows",
		taskDef{title: "extract windows lifecycle", secret: "endoflife"},
		taskDef{title: "transform windows lifecycle", secret: "endoflife"},
		storeTask("load windows lifecycle to minio"),
		tableTask("load windows lifecycle to postgres", "end_of_life_date_microsoft_windows"),
	)

	err := DefaultRegistry().Run(context.Background(), EndOfLifeWindows, e.deps)
	require.ErrorIs(t, err, orchestration.ErrFlowAborted)
	assert.Contains(t, err.Error(), "secret not found")
}

func TestLoadFailureDoesNotStopOtherLoad(t *testing.T) {
	e := newEnv(t)
	srv := newEOLServer(t)
	e.secrets["kv/endoflife"] = map[string]string{"base_uri": srv.URL}
	e.writeTasks(t, EndOfLifeWindows, "end_of_life_date", "microsoft_windows",
		taskDef{title: "extract windows lifecycle", secret: "endoflife"},
		taskDef{title: "transform windows lifecycle", secret: "endoflife"},
		taskDef{title: "load windows lifecycle to minio", secret: "minio", dest: "bucket: missing, file_type: csv"},
		tableTask("load windows lifecycle to postgres", "end_of_life_date_microsoft_windows"),
	)
	e.expectReplace(`CREATE TABLE "public"."stg_api_end_of_life_date_microsoft_windows"`, 10)

	err := DefaultRegistry().Run(context.Background(), EndOfLifeWindows, e.deps)
	require.ErrorIs(t, err, orchestration.ErrLoadFailed)
	assert.Contains(t, err.Error(), "load windows lifecycle to minio")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestScalePadFlowRenamesUIDForPostgresOnly(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if assert.NoError(t, err) {
			assert.Equal(t, "cookie-1", c.Value)
		}
		_, _ = w.Write([]byte("uid,Name,Serial\nA1,Laptop 1,SN1\nA2,Laptop 2,\n"))
	}))
	t.Cleanup(srv.Close)
	e.secrets["kv/scalepad"] = map[string]string{"base_uri": srv.URL, "session_cookie": "cookie-1"}
	e.writeTasks(t, ScalePadHardware, "scalepad", "hardware_assets",
		taskDef{title: "extract hardware assets", secret: "scalepad"},
		storeTask("load hardware assets to minio"),
		tableTask("load hardware assets to postgres", "scalepad_hardware_assets"),
	)
	e.expectReplace(`CREATE TABLE "public"."stg_api_scalepad_hardware_assets" ("id" text, "Name" text, "Serial" text, "_SOURCE_PRODUCT" text`, 2)

	require.NoError(t, DefaultRegistry().Run(context.Background(), ScalePadHardware, e.deps))
	assert.NoError(t, e.mock.ExpectationsWereMet())

	keys := e.objects(t)
	require.Len(t, keys, 1)
	data, err := e.store.GetObject(context.Background(), bucket, keys[0])
	require.NoError(t, err)
	assert.Contains(t, lines(data)[0], `"uid":"A1"`)
}

func newDattoServer(t *testing.T, pages map[string]string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/v2/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, ok := pages[strings.TrimPrefix(r.URL.Path, "/api/v2")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDattoVariablesFlowThreadsScopes(t *testing.T) {
	e := newEnv(t)
	srv := newDattoServer(t, map[string]string{
		"/account/variables": `{"variables":[{"id":1,"name":"Region","value":"eu"}],"pageDetails":{}}`,
		"/account/sites":     `{"sites":[{"uid":"s1","name":"HQ"},{"uid":"s2","name":"Branch"}],"pageDetails":{}}`,
		"/site/s1/variables": `{"variables":[{"id":2,"name":"Key","value":"*****","masked":true}],"pageDetails":{}}`,
	})
	e.secrets["kv/datto"] = map[string]string{"base_uri": srv.URL, "api_key": "k", "api_secret": "s"}
	e.writeTasks(t, DattoVariables, "datto_rmm", "account_site_variables",
		taskDef{title: "extract variables", secret: "datto"},
		storeTask("load variables to minio"),
		tableTask("load variables to postgres", "datto_rmm_account_site_variables"),
	)
	e.expectReplace(`CREATE TABLE "public"."stg_api_datto_rmm_account_site_variables" ("id" bigint, "name" text, "value" text, "masked" boolean, "site_uid" text, "site_name" text`, 2)

	require.NoError(t, DefaultRegistry().Run(context.Background(), DattoVariables, e.deps))
	assert.NoError(t, e.mock.ExpectationsWereMet())

	data, err := e.store.GetObject(context.Background(), bucket, e.objects(t)[0])
	require.NoError(t, err)
	rows := lines(data)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], `"site_uid":"[ACCOUNT]"`)
	assert.Contains(t, rows[1], `"site_uid":"s1"`)
	assert.Contains(t, rows[1], `"site_name":"HQ"`)
}

func TestDattoResolvedAlertsRejectsBadLookback(t *testing.T) {
	e := newEnv(t)
	srv := newDattoServer(t, map[string]string{"/account": `{"uid":"acct","name":"Acme"}`})
	e.secrets["kv/datto"] = map[string]string{"base_uri": srv.URL, "api_key": "k", "api_secret": "s"}
	e.writeTasks(t, DattoMonitorsClosed, "datto_rmm", "monitors_resolved",
		taskDef{title: "extract resolved alerts", secret: "datto", options: "{lookback_days: soon}"},
		taskDef{title: "transform resolved alerts", secret: "datto"},
		storeTask("load resolved alerts to minio"),
		tableTask("load resolved alerts to postgres", "datto_rmm_monitors_resolved"),
	)

	err := DefaultRegistry().Run(context.Background(), DattoMonitorsClosed, e.deps)
	require.ErrorIs(t, err, orchestration.ErrFlowAborted)
	assert.Contains(t, err.Error(), "lookback_days")
}

func TestDattoActivityLogsQueryWindow(t *testing.T) {
	e := newEnv(t)
	var query atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/v2/activity-logs", func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		_, _ = w.Write([]byte(`{"activities":[],"pageDetails":{}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	e.secrets["kv/datto"] = map[string]string{"base_uri": srv.URL, "api_key": "k", "api_secret": "s"}
	e.writeTasks(t, DattoActivityPatch, "datto_rmm", "activity_logs_patch",
		taskDef{title: "extract patch activity", secret: "datto", options: "{lookback_days: 2}"},
		taskDef{title: "transform patch activity", secret: "datto"},
		storeTask("load patch activity to minio"),
		tableTask("load patch activity to postgres", "datto_rmm_activity_logs_patch"),
	)
	e.expectReplace(`CREATE TABLE "public"."stg_api_datto_rmm_activity_logs_patch"`, 0)

	require.NoError(t, DefaultRegistry().Run(context.Background(), DattoActivityPatch, e.deps))
	assert.NoError(t, e.mock.ExpectationsWereMet())

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"patch"}, q["categories"])
	assert.Equal(t, []string{"2025-05-18T10:30:15Z"}, q["from"])
	assert.Equal(t, []string{"2025-05-20T10:30:15Z"}, q["until"])
}

func TestShippedTaskDocumentsLoad(t *testing.T) {
	dir := filepath.Join("..", "..", "configs", "flows")
	for _, name := range DefaultRegistry().List() {
		tasks, err := config.LoadTasks(config.TaskFile(dir, name), runAt)
		require.NoError(t, err, name)
		want := 4
		switch name {
		case MartDevices, MartMSPatchEvents:
			want = 2
		case DattoAccount, DattoSites, DattoVariables, ScalePadHardware:
			want = 3
		}
		assert.Len(t, tasks, want, name)
	}
}
