package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/media"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

type testServer struct {
	*httptest.Server
	dispatcher *notify.Dispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mediaStore, err := media.NewLocalStore(filepath.Join(dir, "media"), "/media")
	require.NoError(t, err)

	collector := metrics.NewCollector()
	dispatcher := notify.NewDispatcher(store, notify.LogPusher{}, collector)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)

	handler := NewRouter(Deps{
		Identity:  service.NewIdentityService(store, authenticator, jwtManager),
		Groups:    service.NewGroupService(store, mediaStore),
		Ledger:    service.NewLedgerService(store, mediaStore, dispatcher),
		JWT:       jwtManager,
		Health:    NewHealth(store, time.Now()),
		Collector: collector,
		Metrics:   metrics.Handler(metrics.NewRegistry(collector)),
		MediaDir:  mediaStore.Dir(),
		MediaPath: "/media",
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Cleanup(dispatcher.Wait)
	return &testServer{Server: srv, dispatcher: dispatcher}
}

type result struct {
	Status int
	Envelope
	Raw json.RawMessage
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) result {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return s.send(t, req, token)
}

func (s *testServer) doMultipart(t *testing.T, method, path, token string, fields map[string]string, files ...string) result {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, name := range files {
		fw, err := mw.CreateFormFile(imagesField, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) result {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return result{
		Status:   resp.StatusCode,
		Envelope: Envelope{Code: raw.Code, Message: raw.Message},
		Raw:      raw.Data,
	}
}

func (r result) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Raw, v), "data: %s", r.Raw)
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (s *testServer) register(t *testing.T, name string) session {
	t.Helper()
	res := s.do(t, http.MethodPost, BasePath+"/auth/register", "", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	var sess session
	res.decode(t, &sess)
	return sess
}

func TestAuthRoutes(t *testing.T) {
	srv := newTestServer(t)
	ana := srv.register(t, "ana")

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:   "duplicate registration",
			method: http.MethodPost, path: "/auth/register",
			body:       map[string]string{"name": "ana", "email": "ana@example.com", "password": "password123"},
			wantStatus: http.StatusConflict, wantCode: CodeError,
		},
		{
			name:   "weak password",
			method: http.MethodPost, path: "/auth/register",
			body:       map[string]string{"name": "x", "email": "x@example.com", "password": "short"},
			wantStatus: http.StatusBadRequest, wantCode: CodeError,
		},
		{
			name:   "login",
			method: http.MethodPost, path: "/auth/login",
			body:       map[string]string{"email": "ana@example.com", "password": "password123"},
			wantStatus: http.StatusOK, wantCode: CodeOK,
		},
		{
			name:   "bad login",
			method: http.MethodPost, path: "/auth/login",
			body:       map[string]string{"email": "ana@example.com", "password": "nope-nope"},
			wantStatus: http.StatusUnauthorized, wantCode: CodeError,
		},
		{
			name:   "missing token",
			method: http.MethodGet, path: "/groups",
			wantStatus: http.StatusUnauthorized, wantCode: CodeError,
		},
		{
			name:   "wrong current password",
			method: http.MethodPut, path: "/users/actions/changePassword", token: ana.Token,
			body:       map[string]string{"currentPassword": "wrong-one", "newPassword": "newpassword1"},
			wantStatus: http.StatusBadRequest, wantCode: CodeWrongPassword,
		},
		{
			name:   "logout",
			method: http.MethodPost, path: "/auth/logout", token: ana.Token,
			wantStatus: http.StatusOK, wantCode: CodeOK,
		},
		{
			name:   "unknown route",
			method: http.MethodGet, path: "/nothing-here", token: ana.Token,
			wantStatus: http.StatusNotFound, wantCode: CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := srv.do(t, tt.method, BasePath+tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, res.Status, res.Message)
			assert.Equal(t, tt.wantCode, res.Code)
		})
	}

	t.Run("change password then login with the new one", func(t *testing.T) {
		res := srv.do(t, http.MethodPut, BasePath+"/users/actions/changePassword", ana.Token,
			map[string]string{"currentPassword": "password123", "newPassword": "newpassword1"})
		require.Equal(t, http.StatusOK, res.Status, res.Message)

		res = srv.do(t, http.MethodPost, BasePath+"/auth/login", "",
			map[string]string{"email": "ana@example.com", "password": "newpassword1"})
		assert.Equal(t, http.StatusOK, res.Status)
	})
}

func TestUserRoutes(t *testing.T) {
	srv := newTestServer(t)
	ana := srv.register(t, "ana")
	bob := srv.register(t, "bob")

	res := srv.do(t, http.MethodGet, BasePath+"/users/query?email=BOB@example.com", ana.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)
	var found struct {
		ID string `json:"id"`
	}
	res.decode(t, &found)
	assert.Equal(t, bob.User.ID, found.ID)

	res = srv.do(t, http.MethodGet, BasePath+"/users/query", ana.Token, nil)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = srv.do(t, http.MethodGet, BasePath+"/users/query?id=ghost", ana.Token, nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, CodeNotFound, res.Code)

	res = srv.do(t, http.MethodPost, BasePath+"/users/"+ana.User.ID+"/contacts", ana.Token,
		map[string]string{"contactId": bob.User.ID})
	require.Equal(t, http.StatusOK, res.Status, res.Message)

	res = srv.do(t, http.MethodGet, BasePath+"/users/contacts", ana.Token, nil)
	require.Equal(t, http.StatusOK, res.Status)
	var contacts []struct {
		ID string `json:"id"`
	}
	res.decode(t, &contacts)
	require.Len(t, contacts, 1)
	assert.Equal(t, bob.User.ID, contacts[0].ID)

	t.Run("cannot modify another account", func(t *testing.T) {
		res := srv.do(t, http.MethodPut, BasePath+"/users/"+bob.User.ID, ana.Token, map[string]string{"name": "hacked"})
		assert.Equal(t, http.StatusForbidden, res.Status)
	})

	t.Run("push token", func(t *testing.T) {
		res := srv.do(t, http.MethodPut, BasePath+"/users/"+ana.User.ID+"/updateFcmToken", ana.Token,
			map[string]string{"fcmToken": "device-1"})
		require.Equal(t, http.StatusOK, res.Status, res.Message)
		var user struct {
			Token string `json:"fcmToken"`
		}
		res.decode(t, &user)
		assert.Equal(t, "device-1", user.Token)
	})

	t.Run("other accounts hide device tokens", func(t *testing.T) {
		res := srv.do(t, http.MethodPut, BasePath+"/users/"+bob.User.ID+"/updateFcmToken", bob.Token,
			map[string]string{"fcmToken": "device-bob"})
		require.Equal(t, http.StatusOK, res.Status, res.Message)

		for _, path := range []string{
			BasePath + "/users",
			BasePath + "/users/query?id=" + bob.User.ID,
			BasePath + "/users/contacts",
		} {
			res := srv.do(t, http.MethodGet, path, ana.Token, nil)
			require.Equal(t, http.StatusOK, res.Status, path)
			assert.NotContains(t, string(res.Raw), "device-bob", path)
			assert.NotContains(t, string(res.Raw), "fcmToken", path)
		}

		res = srv.do(t, http.MethodGet, BasePath+"/users/query?id="+bob.User.ID, bob.Token, nil)
		require.Equal(t, http.StatusOK, res.Status)
		assert.Contains(t, string(res.Raw), "device-bob")
	})
}

func TestMultipartNumericFields(t *testing.T) {
	srv := newTestServer(t)
	ana := srv.register(t, "ana")

	res := srv.doMultipart(t, http.MethodPost, BasePath+"/groups", ana.Token, map[string]string{
		"name": "Casa",
		"type": "Hogar",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	var group struct {
		ID string `json:"id"`
	}
	res.decode(t, &group)

	participants := `[{"user":"` + ana.User.ID + `"}]`
	for _, amount := range []string{"NaN", "Inf", "-Infinity", "true", "abc"} {
		t.Run(amount, func(t *testing.T) {
			res := srv.doMultipart(t, http.MethodPost, BasePath+"/groups/"+group.ID+"/expenses", ana.Token, map[string]string{
				"description":  "Luz",
				"type":         "Servicios",
				"totalAmount":  amount,
				"paidBy":       ana.User.ID,
				"participants": participants,
			})
			assert.Equal(t, http.StatusBadRequest, res.Status, res.Message)
			assert.Equal(t, CodeError, res.Code)
		})
	}

	res = srv.doMultipart(t, http.MethodPost, BasePath+"/groups/"+group.ID+"/expenses", ana.Token, map[string]string{
		"description":  "Luz",
		"type":         "Servicios",
		"totalAmount":  " 42.50 ",
		"paidBy":       ana.User.ID,
		"participants": participants,
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
}

func TestGroupAndExpenseRoutes(t *testing.T) {
	srv := newTestServer(t)
	ana := srv.register(t, "ana")
	bob := srv.register(t, "bob")

	res := srv.doMultipart(t, http.MethodPost, BasePath+"/groups", ana.Token, map[string]string{
		"name": "Viaje",
		"type": "Viaje",
	}, "cover.png")
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	var group struct {
		ID    string `json:"id"`
		Image struct {
			URL string `json:"url"`
		} `json:"image"`
	}
	res.decode(t, &group)
	require.NotEmpty(t, group.ID)
	require.NotEmpty(t, group.Image.URL)

	t.Run("uploaded image is served", func(t *testing.T) {
		resp, err := http.Get(srv.URL + group.Image.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	participants := `[{"user":"` + ana.User.ID + `","paid":true},{"user":"` + bob.User.ID + `"}]`
	res = srv.doMultipart(t, http.MethodPost, BasePath+"/groups/"+group.ID+"/expenses", ana.Token, map[string]string{
		"description":  "Hotel",
		"type":         "Ocio",
		"totalAmount":  "100",
		"paidBy":       ana.User.ID,
		"splitType":    "Partes iguales",
		"participants": participants,
		"date":         "2024-03-01",
	}, "receipt.jpg")
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	var added struct {
		Expense struct {
			ID           string `json:"id"`
			Participants []struct {
				User struct {
					ID string `json:"id"`
				} `json:"user"`
				AmountOwed float64 `json:"amountOwed"`
			} `json:"participants"`
			Images []struct {
				PublicID string `json:"publicId"`
			} `json:"images"`
		} `json:"expense"`
	}
	res.decode(t, &added)
	expenseID := added.Expense.ID
	require.Len(t, added.Expense.Participants, 2)
	assert.InDelta(t, 50.0, added.Expense.Participants[1].AmountOwed, 0.001)
	assert.Len(t, added.Expense.Images, 1)

	t.Run("json body with participants array", func(t *testing.T) {
		res := srv.do(t, http.MethodPost, BasePath+"/groups/"+group.ID+"/expenses", ana.Token, map[string]any{
			"description":  "Taxi",
			"type":         "Transporte",
			"totalAmount":  20,
			"paidBy":       bob.User.ID,
			"participants": []map[string]any{{"user": ana.User.ID}, {"user": bob.User.ID}},
		})
		require.Equal(t, http.StatusCreated, res.Status, res.Message)
	})

	t.Run("validation error", func(t *testing.T) {
		res := srv.do(t, http.MethodPost, BasePath+"/groups/"+group.ID+"/expenses", ana.Token, map[string]any{
			"description": "Nada",
		})
		assert.Equal(t, http.StatusBadRequest, res.Status)
		assert.Equal(t, CodeError, res.Code)
	})

	t.Run("find expense", func(t *testing.T) {
		res := srv.do(t, http.MethodGet, BasePath+"/expenses/"+group.ID+"/expenses/"+expenseID, ana.Token, nil)
		require.Equal(t, http.StatusOK, res.Status)
		var expense struct {
			GroupID string `json:"groupId"`
		}
		res.decode(t, &expense)
		assert.Equal(t, group.ID, expense.GroupID)

		res = srv.do(t, http.MethodGet, BasePath+"/expenses/other/expenses/"+expenseID, ana.Token, nil)
		assert.Equal(t, http.StatusNotFound, res.Status)
	})

	t.Run("update expense removes image", func(t *testing.T) {
		remove, err := json.Marshal([]string{added.Expense.Images[0].PublicID})
		require.NoError(t, err)
		res := srv.doMultipart(t, http.MethodPut, BasePath+"/groups/"+group.ID+"/expenses/"+expenseID, ana.Token,
			map[string]string{"description": "Hotel centro", "imagesToRemove": string(remove)})
		require.Equal(t, http.StatusOK, res.Status, res.Message)
		var updated struct {
			Expense struct {
				Description string     `json:"description"`
				Images      []struct{} `json:"images"`
			} `json:"expense"`
		}
		res.decode(t, &updated)
		assert.Equal(t, "Hotel centro", updated.Expense.Description)
		assert.Empty(t, updated.Expense.Images)
	})

	t.Run("reminder then settle", func(t *testing.T) {
		res := srv.do(t, http.MethodPut, BasePath+"/users/"+bob.User.ID+"/updateFcmToken", bob.Token,
			map[string]string{"fcmToken": "bob-device"})
		require.Equal(t, http.StatusOK, res.Status)

		res = srv.do(t, http.MethodPost, BasePath+"/expenses/"+group.ID+"/reminder/"+expenseID, ana.Token, nil)
		require.Equal(t, http.StatusOK, res.Status, res.Message)
		var reminder reminderResponse
		res.decode(t, &reminder)
		assert.Equal(t, 1, reminder.Notified)

		res = srv.do(t, http.MethodPut, BasePath+"/groups/"+group.ID+"/expenses/"+expenseID+"/participantPaid", ana.Token,
			map[string]any{"participantId": bob.User.ID, "paid": true})
		require.Equal(t, http.StatusOK, res.Status, res.Message)

		res = srv.do(t, http.MethodPost, BasePath+"/expenses/"+group.ID+"/reminder/"+expenseID, ana.Token, nil)
		require.Equal(t, http.StatusOK, res.Status)
		res.decode(t, &reminder)
		assert.Equal(t, 0, reminder.Notified)
	})

	t.Run("members", func(t *testing.T) {
		res := srv.do(t, http.MethodGet, BasePath+"/groups/"+group.ID+"/members", ana.Token, nil)
		require.Equal(t, http.StatusOK, res.Status)
		var members []struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		res.decode(t, &members)
		assert.Len(t, members, 2)

		res = srv.do(t, http.MethodPost, BasePath+"/groups/"+group.ID+"/members", ana.Token,
			map[string]string{"userId": bob.User.ID})
		assert.Equal(t, http.StatusConflict, res.Status)
	})

	t.Run("balances", func(t *testing.T) {
		res := srv.do(t, http.MethodGet, BasePath+"/groups/"+group.ID+"/balances", ana.Token, nil)
		require.Equal(t, http.StatusOK, res.Status)
	})

	t.Run("only the creator deletes", func(t *testing.T) {
		res := srv.do(t, http.MethodDelete, BasePath+"/groups/"+group.ID, bob.Token, nil)
		assert.Equal(t, http.StatusForbidden, res.Status)

		res = srv.do(t, http.MethodDelete, BasePath+"/groups/"+group.ID, ana.Token, nil)
		assert.Equal(t, http.StatusOK, res.Status)

		res = srv.do(t, http.MethodGet, BasePath+"/groups/"+group.ID, ana.Token, nil)
		assert.Equal(t, http.StatusNotFound, res.Status)
		assert.Equal(t, CodeNotFound, res.Code)
	})
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(t)

	res := srv.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, res.Status)
	var status HealthStatus
	res.decode(t, &status)
	assert.Equal(t, "up", status.Database)

	client := connect.NewClient[emptypb.Empty, structpb.Struct](http.DefaultClient, srv.URL+HealthCheckProcedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Msg.GetFields()["status"].GetStringValue())

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
