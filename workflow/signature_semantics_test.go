package workflow

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/habitaflow/rentals_backend/models"
	"github.com/habitaflow/rentals_backend/utils"
)

// NOTE: These tests are DB-free and exercise the production validation and
// completeness logic directly. The race semantics (guarded UPDATEs, link
// consumption, advisory-lock serialization) are covered by the docker-gated
// integration tests alongside the models.

func testSignatureBlob(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestValidateSignatureInput(t *testing.T) {
	blob := testSignatureBlob(t)
	lat, lng := 45.76, 4.83

	cases := []struct {
		name    string
		input   SignatureInput
		wantErr error
	}{
		{"valid", SignatureInput{SignatureBlob: blob, GeoLat: &lat, GeoLng: &lng}, nil},
		{"empty blob", SignatureInput{GeoLat: &lat, GeoLng: &lng}, utils.ErrInvalidInput},
		{"junk blob", SignatureInput{SignatureBlob: "not!!base64##", GeoLat: &lat, GeoLng: &lng}, utils.ErrInvalidInput},
		{"missing latitude", SignatureInput{SignatureBlob: blob, GeoLng: &lng}, utils.ErrInvalidInput},
		{"missing longitude", SignatureInput{SignatureBlob: blob, GeoLat: &lat}, utils.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSignatureInput(tc.input)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("validateSignatureInput: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("validateSignatureInput: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func fourPartyInspection() *models.Inspection {
	ownerName := "Owner"
	tenantName := "Tenant"
	agencyId := 7
	return &models.Inspection{
		ID:     1,
		Status: models.InspectionStatusInProgress,
		Property: models.Property{
			OwnerName:  &ownerName,
			TenantName: &tenantName,
		},
		AgencyId: &agencyId,
	}
}

func TestApplyInMemoryTracksCompleteness(t *testing.T) {
	inspection := fourPartyInspection()
	required := inspection.RequiredSigners()
	if len(required) != 4 {
		t.Fatalf("required = %v, want all four parties", required)
	}

	signedAt := time.Now().UTC()
	for i, st := range required {
		applyInMemory(inspection, st, models.PartySignature{
			Signature: "blob",
			SignedAt:  &signedAt,
		})
		if !inspection.SignatureOf(st).IsSigned() {
			t.Fatalf("%s should read as signed after applyInMemory", st)
		}

		pending := inspection.PendingSigners()
		if len(pending) != len(required)-i-1 {
			t.Fatalf("after %d signatures pending = %v", i+1, pending)
		}
		if got, want := inspection.AllRequiredSigned(), i == len(required)-1; got != want {
			t.Fatalf("after %d signatures AllRequiredSigned = %v, want %v", i+1, got, want)
		}
	}
}

func TestApplyInMemoryTouchesOnlyOneParty(t *testing.T) {
	inspection := fourPartyInspection()
	signedAt := time.Now().UTC()

	applyInMemory(inspection, models.SignerTypeOwner, models.PartySignature{
		Signature: "blob",
		SignedAt:  &signedAt,
	})

	for _, st := range []models.SignerType{models.SignerTypeInspector, models.SignerTypeTenant, models.SignerTypeAgency} {
		if inspection.SignatureOf(st).IsSigned() {
			t.Fatalf("%s must stay unsigned when only the owner signed", st)
		}
	}
}
