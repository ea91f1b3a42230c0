package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/rollcall/apps/api/echo"
	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	logsvc "github.com/trezcool/rollcall/services/logger"
	testutil "github.com/trezcool/rollcall/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func init() {
	attendance.NowFunc = func() time.Time { return testutil.Now }
}

type app struct {
	*Server
	conf *core.Config
	svcs *testutil.Services
}

func setup(t *testing.T, opts ...func(conf *core.Config)) *app {
	t.Helper()
	conf := testutil.NewConfig()
	for _, opt := range opts {
		opt(conf)
	}

	logger := logsvc.NewRollbarLogger(zerolog.New(io.Discard), conf)
	logger.Enable(false)

	validate, translator := testutil.NewValidate()
	svcs := testutil.NewServices(conf, validate)

	srv := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		AttendanceSvc: svcs.Attendance,
		StudentSvc:    svcs.Students,
		Validate:      validate,
		Translator:    translator,
	})
	return &app{Server: srv, conf: conf, svcs: svcs}
}

func (a *app) token(t *testing.T, username string, roles ...string) string {
	t.Helper()
	token, err := GenerateToken(a.conf, NewClaims(a.conf, username, roles...))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (a *app) teacherToken(t *testing.T) string { return a.token(t, "teacher1", RoleTeacher) }
func (a *app) adminToken(t *testing.T) string   { return a.token(t, "head", RoleAdmin) }

// do serves the request and returns the recorder.
func (a *app) do(method, path, token string, body ...interface{}) *httptest.ResponseRecorder {
	var data []byte
	if len(body) > 0 {
		switch b := body[0].(type) {
		case []byte:
			data = b
		case string:
			data = []byte(b)
		default:
			data, _ = json.Marshal(b)
		}
	}
	req, rec := newAuthRequest(method, path, token, data)
	a.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, a *app, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			var rec *httptest.ResponseRecorder
			if tt.body != nil {
				rec = a.do(method, tt.path, tt.token, tt.body)
			} else {
				rec = a.do(method, tt.path, tt.token)
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestServer_home(t *testing.T) {
	a := setup(t)
	rec := a.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Rollcall API!", rec.Body.String())
}

func TestServer_auth(t *testing.T) {
	a := setup(t)
	teacher := a.teacherToken(t)
	nobody := a.token(t, "nobody")
	forbidden := marshalObj(t, httpErr{Error: "permission denied"})

	runTests(t, a, []httpTest{
		{name: "Auth required", path: "/v1/attendance", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Auth required (students)", path: "/v1/students?class_name=5A", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Bad token", path: "/v1/attendance", token: "not.a.jwt", wantCode: http.StatusUnauthorized},
		{name: "Role required", path: "/v1/attendance", token: nobody, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "Teacher can query", path: "/v1/attendance", token: teacher, wantCode: http.StatusOK},
		{name: "Admin can query", path: "/v1/attendance", token: a.adminToken(t), wantCode: http.StatusOK},
		{
			name: "Admin required (delete filtered)", method: http.MethodDelete, path: "/v1/attendance",
			token: teacher, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Admin required (class corrections)", method: http.MethodPost, path: "/v1/attendance/class-corrections",
			token: teacher, body: "{}", wantCode: http.StatusForbidden, wantData: forbidden,
		},
	})
}
