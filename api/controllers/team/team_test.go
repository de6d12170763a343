package team

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/autevo/filmtechos-backend/api/middleware"
	teamsvc "github.com/autevo/filmtechos-backend/internal/team"
	"github.com/autevo/filmtechos-backend/pkg/auth"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type stubTeamService struct {
	members  []teamsvc.MemberDTO
	invite   teamsvc.InviteInput
	roleUser uuid.UUID
	role     enums.UserRole
	err      error
}

func (s *stubTeamService) List(_ context.Context, _ auth.Actor) ([]teamsvc.MemberDTO, error) {
	return s.members, s.err
}

func (s *stubTeamService) Invite(_ context.Context, actor auth.Actor, input teamsvc.InviteInput) (*teamsvc.MemberDTO, error) {
	s.invite = input
	if s.err != nil {
		return nil, s.err
	}
	return &teamsvc.MemberDTO{ID: uuid.New(), TenantID: actor.TenantID, Email: input.Email, Role: input.Role, Status: enums.UserStatusInvited}, nil
}

func (s *stubTeamService) ChangeRole(_ context.Context, actor auth.Actor, userID uuid.UUID, role enums.UserRole) (*teamsvc.MemberDTO, error) {
	s.roleUser = userID
	s.role = role
	if s.err != nil {
		return nil, s.err
	}
	return &teamsvc.MemberDTO{ID: userID, TenantID: actor.TenantID, Role: role}, nil
}

func adminActor() auth.Actor {
	return auth.Actor{ExternalID: "user_admin", UserID: uuid.New(), TenantID: uuid.New(), Role: enums.UserRoleAdmin}
}

func withActor(req *http.Request, actor auth.Actor) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestTeamListReturnsEmptyArray(t *testing.T) {
	req := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/team", nil), adminActor())
	resp := httptest.NewRecorder()
	TeamList(&stubTeamService{}, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != `{"data":{"members":[]}}`+"\n" {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestTeamInviteValidatesRole(t *testing.T) {
	svc := &stubTeamService{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/team/invites", bytes.NewBufferString(`{"email":"novo@loja.test","role":"OWNER"}`)), adminActor())
	resp := httptest.NewRecorder()
	TeamInvite(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for owner invite, got %d", resp.Code)
	}
}

func TestTeamInviteCreatesMember(t *testing.T) {
	svc := &stubTeamService{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/team/invites", bytes.NewBufferString(`{"email":"novo@loja.test","role":"MEMBER"}`)), adminActor())
	resp := httptest.NewRecorder()
	TeamInvite(svc, testLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.invite.Email != "novo@loja.test" || svc.invite.Role != enums.UserRoleMember {
		t.Fatalf("unexpected invite input: %+v", svc.invite)
	}
}

func TestTeamChangeRoleParsesUserID(t *testing.T) {
	svc := &stubTeamService{}
	router := chi.NewRouter()
	router.Patch("/api/v1/team/{userId}/role", TeamChangeRole(svc, testLogger()))

	req := withActor(httptest.NewRequest(http.MethodPatch, "/api/v1/team/not-a-uuid/role", bytes.NewBufferString(`{"role":"ADMIN"}`)), adminActor())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", resp.Code)
	}

	target := uuid.New()
	req = withActor(httptest.NewRequest(http.MethodPatch, "/api/v1/team/"+target.String()+"/role", bytes.NewBufferString(`{"role":"ADMIN"}`)), adminActor())
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.roleUser != target || svc.role != enums.UserRoleAdmin {
		t.Fatalf("unexpected change: %s %s", svc.roleUser, svc.role)
	}

	var envelope struct {
		Data teamsvc.MemberDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != target {
		t.Fatalf("unexpected member %s", envelope.Data.ID)
	}
}

func TestTeamChangeRoleMapsStateConflict(t *testing.T) {
	svc := &stubTeamService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "tenant must keep an owner")}
	router := chi.NewRouter()
	router.Patch("/api/v1/team/{userId}/role", TeamChangeRole(svc, testLogger()))

	req := withActor(httptest.NewRequest(http.MethodPatch, "/api/v1/team/"+uuid.NewString()+"/role", bytes.NewBufferString(`{"role":"MEMBER"}`)), adminActor())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}
