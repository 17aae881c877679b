package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhsenso/erp/internal/repo"
)

func newTestUserAdmin(t *testing.T, r *stubAuthRepo, rdb *stubRedis) (*UserAdminService, *AuthService) {
	t.Helper()
	perms := newTestPermissionService(r, rdb, time.Minute)
	authSvc := newTestAuthService(t, r, rdb, nil, baseClock())
	authSvc.permissions = perms
	return NewUserAdminService(r, authSvc, perms), authSvc
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{-3, 5, 1, 5},
		{2, 500, 2, 100},
		{4, 100, 4, 100},
		{1, 1, 1, 1},
	}
	for _, tc := range tests {
		p, s := normalizePage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("normalizePage(%d,%d) = %d,%d want %d,%d", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestUserAdminListPages(t *testing.T) {
	users := make([]repo.Usuario, 0, 25)
	for i := 0; i < 25; i++ {
		users = append(users, legacyUser(fmt.Sprintf("U%02d", i), "x", "S"))
	}
	users = append(users, legacyUser("INATIVO", "x", "N"))
	svc, _ := newTestUserAdmin(t, newStubAuthRepo(users...), newStubRedis())

	page, err := svc.List(context.Background(), UserFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 26 || len(page.Items) != 20 || page.Page != 1 || page.PageSize != 20 {
		t.Fatalf("unexpected first page %+v", page)
	}

	page, _ = svc.List(context.Background(), UserFilter{Page: 2, PageSize: 20})
	if len(page.Items) != 6 {
		t.Fatalf("expected 6 items on page 2, got %d", len(page.Items))
	}

	ativo := false
	page, _ = svc.List(context.Background(), UserFilter{Ativo: &ativo})
	if page.Total != 1 || page.Items[0].CdUsuario != "INATIVO" || page.Items[0].Ativo {
		t.Fatalf("unexpected filtered page %+v", page)
	}

	page, _ = svc.List(context.Background(), UserFilter{Page: 9})
	if page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("page past the end must be empty, got %+v", page.Items)
	}
}

func TestUserAdminSetActiveRevokesSessions(t *testing.T) {
	r := newStubAuthRepo(legacyUser("MARIA", "abc12345", "S"))
	r.habs["MARIA"] = []repo.Habilitacao{{CdSistema: "RHU", CdFuncao: "F", CdAcoes: "C"}}
	rdb := newStubRedis()
	svc, authSvc := newTestUserAdmin(t, r, rdb)
	ctx := context.Background()

	if _, err := authSvc.Login(ctx, "MARIA", "abc12345", RequestMeta{}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Permissions(ctx, "MARIA", "RHU"); err != nil {
		t.Fatalf("permissions: %v", err)
	}

	summary, err := svc.SetActive(ctx, "maria", false, RequestMeta{})
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if summary.Ativo {
		t.Fatal("summary must report inactive user")
	}
	if r.activeTokens("MARIA") != 0 {
		t.Fatal("deactivation must revoke sessions")
	}
	if _, ok := rdb.hashes["perm:MARIA"]; ok {
		t.Fatal("deactivation must clear the permission cache")
	}
	if _, err := authSvc.Login(ctx, "MARIA", "abc12345", RequestMeta{}); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	summary, err = svc.SetActive(ctx, "MARIA", true, RequestMeta{})
	if err != nil || !summary.Ativo {
		t.Fatalf("enable: %+v %v", summary, err)
	}

	if _, err := svc.SetActive(ctx, "NINGUEM", true, RequestMeta{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserAdminGetAndRevoke(t *testing.T) {
	r := newStubAuthRepo(legacyUser("MARIA", "abc12345", "S"))
	r.grupos["MARIA"] = []repo.UsuarioGrupo{{CdSistema: "RHU", CdGrUser: "ADMIN"}}
	svc, authSvc := newTestUserAdmin(t, r, newStubRedis())
	ctx := context.Background()

	detail, err := svc.Get(ctx, "maria")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.CdUsuario != "MARIA" || len(detail.Grupos) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	for i := 0; i < 2; i++ {
		if _, err := authSvc.Login(ctx, "MARIA", "abc12345", RequestMeta{}); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	n, err := svc.RevokeSessions(ctx, "MARIA", RequestMeta{IP: "10.1.1.1"})
	if err != nil || n != 2 {
		t.Fatalf("revoke: n=%d err=%v", n, err)
	}
	if _, err := svc.RevokeSessions(ctx, "NINGUEM", RequestMeta{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Permissions(ctx, "NINGUEM", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
