package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Drewww17/m2-sa-luminarias/internal/domain/scan"
	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
)

func serve(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var out Response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestHandler_Verify(t *testing.T) {
	repo := newStore(t)
	ctx := context.Background()
	good := sealedScan(t, integrity.SchemeFixed)
	bad := sealedScan(t, integrity.SchemeFixed)
	repo.Create(ctx, good)
	repo.Create(ctx, bad)
	repo.Modify(ctx, bad.ID, func(s *scan.Scan) error { s.Confidence = 40; return nil })

	h := NewHandler(NewVerifier(repo, zerolog.Nop()), "https://dfu.example.org/")

	rec := serve(t, h, "/verify/"+good.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out.Status != StatusVerified || out.Record == nil || out.Record.Confidence != 92.5 {
		t.Errorf("unexpected verified response %+v", out)
	}

	rec = serve(t, h, "/verify/"+bad.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	compromised := decode(t, rec)
	if compromised.Status != StatusIntegrityCompromised || compromised.Record == nil || compromised.Record.Confidence != 40 {
		t.Errorf("unexpected compromised response %+v", compromised)
	}

	rec = serve(t, h, "/verify/"+uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	missing := decode(t, rec)
	if missing.Status != StatusNotFound || missing.Record != nil {
		t.Errorf("unexpected not found response %+v", missing)
	}

	if out.Message == compromised.Message || compromised.Message == missing.Message || out.Message == missing.Message {
		t.Error("each state needs its own message")
	}
}

func TestHandler_QRCode(t *testing.T) {
	h := NewHandler(NewVerifier(newStore(t), zerolog.Nop()), "https://dfu.example.org/")
	id := uuid.NewString()

	if got := h.VerifyURL(id); got != "https://dfu.example.org/verify/"+id {
		t.Errorf("unexpected verify url %s", got)
	}

	rec := serve(t, h, "/verify/"+id+"/qr.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected a PNG body")
	}

	rec = serve(t, h, "/verify/nope/qr.png")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
