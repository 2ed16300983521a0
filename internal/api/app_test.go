package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/campus-connect/internal/auth"
	"github.com/npezzotti/campus-connect/internal/config"
	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/npezzotti/campus-connect/internal/server"
	"github.com/npezzotti/campus-connect/internal/stats"
	"github.com/npezzotti/campus-connect/internal/testutil"
	"github.com/npezzotti/campus-connect/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "campus-connect"
	testAudience = "campus-connect-client"
	testOrigin   = "http://localhost:5173"
)

var (
	testSigningKey = []byte("test-signing-key")

	testStudent = types.User{Id: 1, Username: "ana", Email: "ana@seeu.edu.mk", Role: types.RoleUser}
	testAdmin   = types.User{Id: 2, Username: "admin", Email: "admin@seeu.edu.mk", Role: types.RoleAdmin}
)

func newTestHub(t *testing.T, db database.ChatMessageRepository) *server.Hub {
	t.Helper()
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return()
	su.On("Decr", mock.Anything).Return()
	return server.NewHub(testutil.TestLogger(t), db, nil, su, 0)
}

func newTestApp(t *testing.T, db *database.MockCampusRepository) *CampusApp {
	t.Helper()
	tokens := auth.NewTokenService(testSigningKey, testIssuer, testAudience)
	return NewCampusApp(
		http.NewServeMux(),
		testutil.TestLogger(t),
		newTestHub(t, db),
		db,
		tokens,
		&config.Config{
			ServerAddr:     "localhost:8000",
			AllowedOrigins: []string{testOrigin},
		},
	)
}

func tokenFor(t *testing.T, app *CampusApp, user types.User) string {
	t.Helper()
	token, err := app.tokens.Issue(user)
	require.NoError(t, err, "failed to issue test token")
	return token
}

func expiredTokenFor(t *testing.T, user types.User) string {
	t.Helper()
	issued := time.Now().Add(-2 * auth.TokenLifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.Id),
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(auth.TokenLifetime)),
		},
	})
	signed, err := token.SignedString(testSigningKey)
	require.NoError(t, err, "failed to sign expired token")
	return signed
}

func doRequest(app *CampusApp, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr), "expected a JSON error body")
	return apiErr
}

func TestNewCampusApp(t *testing.T) {
	db := &database.MockCampusRepository{}
	app := newTestApp(t, db)

	assert.NotNil(t, app.srv, "expected http server to be initialized")
	assert.Equal(t, "localhost:8000", app.srv.Addr, "expected server address to match config")
	assert.Equal(t, db, app.db, "expected db to be set")
	assert.NotNil(t, app.hub, "expected hub to be set")
	assert.Equal(t, []string{testOrigin}, app.allowedOrigins)
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockCampusRepository{}
			defer db.AssertExpectations(t)
			db.On("Ping").Return(tc.mockErr).Once()

			rr := doRequest(newTestApp(t, db), http.MethodGet, "/healthz", "", "")

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &CampusApp{
		log: testutil.TestLogger(t),
	}
	app.log.SetOutput(buf)

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.requestId(app.errorHandler(panicHandler)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
	assert.Contains(t, buf.String(), rr.Header().Get(requestIdHeader), "expected the request id in the panic log")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &CampusApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.errorHandler(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestRequestId(t *testing.T) {
	app := &CampusApp{}
	var seen string
	h := app.requestId(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestId(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(requestIdHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIdHeader, "abc-123")
		h.ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rr.Header().Get(requestIdHeader))
	})
}

func TestBearerToken(t *testing.T) {
	tcases := []struct {
		name     string
		header   string
		query    string
		expected string
	}{
		{"bearer header", "Bearer abc", "", "abc"},
		{"lower case scheme", "bearer abc", "", "abc"},
		{"query parameter", "", "?access_token=xyz", "xyz"},
		{"header wins over query", "Bearer abc", "?access_token=xyz", "abc"},
		{"other scheme", "Basic abc", "", ""},
		{"missing", "", "", ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/chathub"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.expected, bearerToken(req))
		})
	}
}

func Test_authMiddleware(t *testing.T) {
	db := &database.MockCampusRepository{}
	app := newTestApp(t, db)
	foreign := auth.NewTokenService([]byte("another-key"), testIssuer, testAudience)
	foreignToken, err := foreign.Issue(testStudent)
	require.NoError(t, err)

	var got auth.Identity
	h := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tcases := []struct {
		name         string
		token        string
		expectedCode int
	}{
		{"valid token", tokenFor(t, app, testStudent), http.StatusNoContent},
		{"missing token", "", http.StatusUnauthorized},
		{"foreign key", foreignToken, http.StatusUnauthorized},
		{"garbage", "not-a-token", http.StatusUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got = auth.Identity{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rr := httptest.NewRecorder()
			h(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusNoContent {
				assert.Equal(t, testStudent.Id, got.UserId)
				assert.Equal(t, testStudent.Username, got.Username)
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			} else {
				assert.Equal(t, "unauthorized", decodeApiError(t, rr).Message)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	body := `{"username":"ana","email":"ana@seeu.edu.mk","password":"s3cret"}`
	createdUser := database.User{Id: 1, Username: "ana", Email: "ana@seeu.edu.mk", Role: "User", CreatedAt: time.Now()}

	tcases := []struct {
		name         string
		body         string
		setup        func(db *database.MockCampusRepository)
		expectedCode int
		expectedText string
	}{
		{
			name: "success",
			body: body,
			setup: func(db *database.MockCampusRepository) {
				db.On("UsernameExists", "ana").Return(false, nil)
				db.On("EmailExists", "ana@seeu.edu.mk").Return(false, nil)
				db.On("CreateUser", mock.MatchedBy(func(p database.CreateUserParams) bool {
					return p.Username == "ana" && p.Role == "User" && auth.VerifyPassword(p.PasswordHash, "s3cret")
				})).Return(createdUser, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "username exists",
			body: body,
			setup: func(db *database.MockCampusRepository) {
				db.On("UsernameExists", "ana").Return(true, nil)
			},
			expectedCode: http.StatusBadRequest,
			expectedText: "Username already exists",
		},
		{
			name: "email exists",
			body: body,
			setup: func(db *database.MockCampusRepository) {
				db.On("UsernameExists", "ana").Return(false, nil)
				db.On("EmailExists", "ana@seeu.edu.mk").Return(true, nil)
			},
			expectedCode: http.StatusBadRequest,
			expectedText: "Email already exists",
		},
		{
			name: "username taken concurrently",
			body: body,
			setup: func(db *database.MockCampusRepository) {
				db.On("UsernameExists", "ana").Return(false, nil)
				db.On("EmailExists", "ana@seeu.edu.mk").Return(false, nil)
				db.On("CreateUser", mock.Anything).Return(database.User{}, database.ErrUsernameTaken)
			},
			expectedCode: http.StatusBadRequest,
			expectedText: "Username already exists",
		},
		{
			name:         "missing fields",
			body:         `{"username":"ana"}`,
			setup:        func(db *database.MockCampusRepository) {},
			expectedCode: http.StatusBadRequest,
			expectedText: "Username, email and password are required",
		},
		{
			name:         "invalid json",
			body:         `{`,
			setup:        func(db *database.MockCampusRepository) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "database error",
			body: body,
			setup: func(db *database.MockCampusRepository) {
				db.On("UsernameExists", "ana").Return(false, errors.New("db down"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockCampusRepository{}
			defer db.AssertExpectations(t)
			tc.setup(db)
			app := newTestApp(t, db)

			rr := doRequest(app, http.MethodPost, "/api/auth/register", tc.body, "")
			assert.Equal(t, tc.expectedCode, rr.Code)

			if tc.expectedText != "" {
				assert.Equal(t, tc.expectedText, rr.Body.String())
			}

			if tc.expectedCode == http.StatusOK {
				var resp AuthResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, "ana", resp.Username)
				assert.Equal(t, types.RoleUser, resp.Role)

				identity, err := app.tokens.Validate(resp.Token)
				require.NoError(t, err, "expected a valid token")
				assert.Equal(t, 1, identity.UserId)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	dbUser := database.User{Id: 2, Username: "admin", Email: "admin@seeu.edu.mk", PasswordHash: hash, Role: "Admin"}

	tcases := []struct {
		name         string
		body         string
		setup        func(db *database.MockCampusRepository)
		expectedCode int
		expectedText string
	}{
		{
			name: "success",
			body: `{"username":"admin","password":"s3cret"}`,
			setup: func(db *database.MockCampusRepository) {
				db.On("GetUserByUsername", "admin").Return(dbUser, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "wrong password",
			body: `{"username":"admin","password":"nope"}`,
			setup: func(db *database.MockCampusRepository) {
				db.On("GetUserByUsername", "admin").Return(dbUser, nil)
			},
			expectedCode: http.StatusUnauthorized,
			expectedText: "Invalid username or password",
		},
		{
			name: "unknown user",
			body: `{"username":"ghost","password":"s3cret"}`,
			setup: func(db *database.MockCampusRepository) {
				db.On("GetUserByUsername", "ghost").Return(database.User{}, database.ErrNotFound)
			},
			expectedCode: http.StatusUnauthorized,
			expectedText: "Invalid username or password",
		},
		{
			name: "database error",
			body: `{"username":"admin","password":"s3cret"}`,
			setup: func(db *database.MockCampusRepository) {
				db.On("GetUserByUsername", "admin").Return(database.User{}, errors.New("db down"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockCampusRepository{}
			defer db.AssertExpectations(t)
			tc.setup(db)
			app := newTestApp(t, db)

			rr := doRequest(app, http.MethodPost, "/api/auth/login", tc.body, "")
			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedText != "" {
				assert.Equal(t, tc.expectedText, rr.Body.String())
			}

			if tc.expectedCode == http.StatusOK {
				var resp AuthResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, types.RoleAdmin, resp.Role)

				identity, err := app.tokens.Validate(resp.Token)
				require.NoError(t, err)
				assert.Equal(t, types.RoleAdmin, identity.Role)
			}
		})
	}
}

func TestSession(t *testing.T) {
	db := &database.MockCampusRepository{}
	defer db.AssertExpectations(t)
	db.On("GetUserById", testStudent.Id).Return(database.User{
		Id:       testStudent.Id,
		Username: testStudent.Username,
		Email:    testStudent.Email,
		Role:     "User",
	}, nil)
	app := newTestApp(t, db)

	rr := doRequest(app, http.MethodGet, "/api/auth/session", "", tokenFor(t, app, testStudent))
	require.Equal(t, http.StatusOK, rr.Code)

	var u types.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	assert.Equal(t, testStudent.Username, u.Username)
	assert.Equal(t, testStudent.Email, u.Email)
	assert.Equal(t, types.RoleUser, u.Role)

	rr = doRequest(app, http.MethodGet, "/api/auth/session", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetChatMessages(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	newestFirst := []database.ChatMessage{
		{Id: 3, Content: "C", Username: "ben", SentAt: t1.Add(2 * time.Minute)},
		{Id: 2, Content: "B", Username: "ana", SentAt: t1.Add(time.Minute)},
		{Id: 1, Content: "A", Username: "ana", SentAt: t1},
	}

	tcases := []struct {
		name          string
		query         string
		expectedLimit int
		expectedCode  int
	}{
		{"default count", "", 50, http.StatusOK},
		{"explicit count", "?count=3", 3, http.StatusOK},
		{"upper bound", "?count=500", 500, http.StatusOK},
		{"zero", "?count=0", 0, http.StatusBadRequest},
		{"too large", "?count=501", 0, http.StatusBadRequest},
		{"not a number", "?count=ten", 0, http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockCampusRepository{}
			defer db.AssertExpectations(t)
			if tc.expectedCode == http.StatusOK {
				db.On("GetRecentChatMessages", tc.expectedLimit).Return(newestFirst, nil).Once()
			}
			app := newTestApp(t, db)

			rr := doRequest(app, http.MethodGet, "/api/chat/messages"+tc.query, "", tokenFor(t, app, testStudent))
			require.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode != http.StatusOK {
				assert.Equal(t, "count must be between 1 and 500", rr.Body.String())
				return
			}

			var msgs []types.ChatMessage
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msgs))
			require.Len(t, msgs, 3)
			assert.Equal(t, []string{"A", "B", "C"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content},
				"expected oldest to newest")
		})
	}

	t.Run("requires token", func(t *testing.T) {
		rr := doRequest(newTestApp(t, &database.MockCampusRepository{}), http.MethodGet, "/api/chat/messages", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestServeWs(t *testing.T) {
	db := &database.MockCampusRepository{}
	app := newTestApp(t, db)
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chathub"

	t.Run("access token query parameter", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+tokenFor(t, app, testStudent), nil)
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		assert.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejected access tokens", func(t *testing.T) {
		foreign, err := auth.NewTokenService([]byte("another-key"), testIssuer, testAudience).Issue(testStudent)
		require.NoError(t, err)

		tcases := []struct {
			name  string
			token string
		}{
			{"expired", expiredTokenFor(t, testStudent)},
			{"signed with another key", foreign},
			{"garbage", "not.a.token"},
		}

		for _, tc := range tcases {
			t.Run(tc.name, func(t *testing.T) {
				_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+url.QueryEscape(tc.token), nil)
				assert.ErrorIs(t, err, websocket.ErrBadHandshake)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			})
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://evil.example")
		header.Set("Authorization", "Bearer "+tokenFor(t, app, testStudent))
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
