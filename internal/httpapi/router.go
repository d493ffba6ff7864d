package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/service"
)

// BasePath prefixes every REST route.
const BasePath = "/api/v1"

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Identity *service.IdentityService
	Groups   *service.GroupService
	Ledger   *service.LedgerService
	JWT      *auth.JWTManager
	Health   *Health

	// Collector records request metrics; nil disables them.
	Collector *metrics.Collector
	// Metrics serves /metrics when set.
	Metrics http.Handler

	// MediaDir is served under MediaPath when set. It backs the local image store.
	MediaDir  string
	MediaPath string
}

// NewRouter builds the HTTP handler for the whole API.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteResponse(w, http.StatusNotFound, Envelope{Code: CodeNotFound, Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteResponse(w, http.StatusMethodNotAllowed, Envelope{Code: CodeError, Message: "method not allowed"})
	})
	r.Use(middleware.Logging(d.Collector))

	// Public routes
	if d.Health != nil {
		r.Handle("/health", d.Health).Methods(http.MethodGet)
		path, handler := d.Health.ConnectHandler()
		r.Handle(path, handler)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
	if d.MediaDir != "" {
		prefix := d.MediaPath + "/"
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(d.MediaDir)))).Methods(http.MethodGet)
	}

	public := r.PathPrefix(BasePath).Subrouter()
	public.HandleFunc("/auth/register", Register(d.Identity)).Methods(http.MethodPost)
	public.HandleFunc("/auth/login", Login(d.Identity)).Methods(http.MethodPost)

	// Authenticated routes
	api := r.PathPrefix(BasePath).Subrouter()
	api.Use(middleware.RequireAuth(d.JWT, WriteError))

	api.HandleFunc("/auth/logout", Logout(d.Identity)).Methods(http.MethodPost)

	// User routes
	api.HandleFunc("/users", ListUsers(d.Identity)).Methods(http.MethodGet)
	api.HandleFunc("/users/contacts", ListContacts(d.Identity)).Methods(http.MethodGet)
	api.HandleFunc("/users/query", QueryUser(d.Identity)).Methods(http.MethodGet)
	api.HandleFunc("/users/actions/changePassword", ChangePassword(d.Identity)).Methods(http.MethodPut)
	api.HandleFunc("/users/actions/addContactAndMember", AddContactAndMember(d.Identity)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", UpdateUser(d.Identity)).Methods(http.MethodPut)
	api.HandleFunc("/users/{id}", DeleteUser(d.Identity)).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/contacts", ListContacts(d.Identity)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/contacts", AddContact(d.Identity)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/contacts/{contactId}", RemoveContact(d.Identity)).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/updateFcmToken", UpdatePushToken(d.Identity)).Methods(http.MethodPut)

	// Group routes
	api.HandleFunc("/groups", CreateGroup(d.Groups)).Methods(http.MethodPost)
	api.HandleFunc("/groups", ListGroups(d.Groups)).Methods(http.MethodGet)
	api.HandleFunc("/groups/{groupId}", GetGroup(d.Groups)).Methods(http.MethodGet)
	api.HandleFunc("/groups/{groupId}", EditGroup(d.Groups)).Methods(http.MethodPut)
	api.HandleFunc("/groups/{groupId}", DeleteGroup(d.Groups)).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{groupId}/balances", GroupBalances(d.Groups)).Methods(http.MethodGet)
	api.HandleFunc("/groups/{groupId}/members", ListMembers(d.Groups)).Methods(http.MethodGet)
	api.HandleFunc("/groups/{groupId}/members", AddMember(d.Groups)).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupId}/members/delete", RemoveMember(d.Groups)).Methods(http.MethodPut)

	// Expense routes
	api.HandleFunc("/groups/{groupId}/expenses", AddExpense(d.Ledger)).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupId}/expenses/{expenseId}", UpdateExpense(d.Ledger)).Methods(http.MethodPut)
	api.HandleFunc("/groups/{groupId}/expenses/{expenseId}", DeleteExpense(d.Ledger)).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{groupId}/expenses/{expenseId}/participants", AddParticipant(d.Ledger)).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupId}/expenses/{expenseId}/participant/delete", SoftDeleteParticipant(d.Ledger)).Methods(http.MethodPut)
	api.HandleFunc("/groups/{groupId}/expenses/{expenseId}/participantPaid", UpdateParticipantPaid(d.Ledger)).Methods(http.MethodPut)
	api.HandleFunc("/expenses/{groupId}/expenses/{expenseId}", FindExpense(d.Ledger)).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{groupId}/reminder/{expenseId}", SendReminder(d.Ledger)).Methods(http.MethodPost)

	return middleware.CORS(r)
}
