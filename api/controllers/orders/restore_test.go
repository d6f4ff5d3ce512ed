package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type stubInventoryService struct {
	result inventory.RestoreResult
	err    error
	input  *inventory.RestoreInput
}

func (s *stubInventoryService) Restore(ctx context.Context, input inventory.RestoreInput) (inventory.RestoreResult, error) {
	s.input = &input
	return s.result, s.err
}

func restoreRequestFor(body, role string, storeID *uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/restore-inventory", strings.NewReader(body))
	store := ""
	if storeID != nil {
		store = storeID.String()
	}
	return req.WithContext(middleware.WithActor(req.Context(), uuid.NewString(), role, store))
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestRestoreInventorySuccess(t *testing.T) {
	orderID, storeID := uuid.New(), uuid.New()
	svc := &stubInventoryService{result: inventory.RestoreResult{
		Success:       true,
		Message:       "inventory restored",
		RestoredItems: []inventory.RestoredItem{{ItemID: uuid.New(), ProductID: uuid.New(), Quantity: 3}},
	}}

	resp := httptest.NewRecorder()
	body := `{"orderId":"` + orderID.String() + `","reason":"customer cancelled"}`
	RestoreInventory(svc, testLogger()).ServeHTTP(resp, restoreRequestFor(body, "seller", &storeID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input == nil || svc.input.OrderID != orderID || svc.input.Reason != "customer cancelled" {
		t.Fatalf("unexpected input %+v", svc.input)
	}
	if svc.input.Actor.Role != enums.MemberRoleSeller || svc.input.Actor.StoreID == nil || *svc.input.Actor.StoreID != storeID {
		t.Fatalf("actor not forwarded: %+v", svc.input.Actor)
	}

	var envelope struct {
		Data restoreResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Success || len(envelope.Data.RestoredItems) != 1 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestRestoreInventoryPartialReturns207(t *testing.T) {
	svc := &stubInventoryService{result: inventory.RestoreResult{
		Success:       false,
		Message:       "restored 1 of 2 items",
		RestoredItems: []inventory.RestoredItem{{ItemID: uuid.New(), Quantity: 1}},
		Errors:        []inventory.ItemError{{ItemID: uuid.New(), Message: "product missing or deleted"}},
	}}

	resp := httptest.NewRecorder()
	RestoreInventory(svc, testLogger()).ServeHTTP(resp, restoreRequestFor(`{"orderId":"`+uuid.NewString()+`"}`, "admin", nil))
	if resp.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", resp.Code)
	}
	var envelope struct {
		Data restoreResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Success || len(envelope.Data.Errors) != 1 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestRestoreInventoryErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing order id", `{}`, nil, http.StatusBadRequest},
		{"bad uuid", `{"orderId":"x"}`, nil, http.StatusBadRequest},
		{"not found", `{"orderId":"` + uuid.NewString() + `"}`, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), http.StatusNotFound},
		{"not restorable", `{"orderId":"` + uuid.NewString() + `"}`, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not cancelled or refunded"), http.StatusUnprocessableEntity},
		{"forbidden", `{"orderId":"` + uuid.NewString() + `"}`, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another store"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubInventoryService{err: tc.err}
			resp := httptest.NewRecorder()
			RestoreInventory(svc, testLogger()).ServeHTTP(resp, restoreRequestFor(tc.body, "admin", nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestRestoreInventoryRequiresActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/restore-inventory", strings.NewReader(`{"orderId":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	RestoreInventory(&stubInventoryService{}, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
