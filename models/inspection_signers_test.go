package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func signedGroup(at time.Time) PartySignature {
	return PartySignature{
		Signature: "ZmFrZS1wbmc=",
		SignedAt:  &at,
	}
}

func inspectionWith(owner, tenant, agency bool) *Inspection {
	i := &Inspection{
		Type:   InspectionTypeMoveIn,
		Status: InspectionStatusInProgress,
	}
	if owner {
		i.Property.OwnerName = strPtr("Martin Caron")
	}
	if tenant {
		i.Property.TenantName = strPtr("Lea Fontaine")
	}
	if agency {
		agencyId := 7
		i.AgencyId = &agencyId
	}
	return i
}

func TestRequiredSignersDerivation(t *testing.T) {
	cases := []struct {
		name                  string
		owner, tenant, agency bool
		want                  []SignerType
	}{
		{"inspector only", false, false, false, []SignerType{SignerTypeInspector}},
		{"with owner", true, false, false, []SignerType{SignerTypeInspector, SignerTypeOwner}},
		{"with tenant", false, true, false, []SignerType{SignerTypeInspector, SignerTypeTenant}},
		{"with agency", false, false, true, []SignerType{SignerTypeInspector, SignerTypeAgency}},
		{"all parties", true, true, true, []SignerType{SignerTypeInspector, SignerTypeOwner, SignerTypeTenant, SignerTypeAgency}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := inspectionWith(tc.owner, tc.tenant, tc.agency).RequiredSigners()
			if len(got) != len(tc.want) {
				t.Fatalf("RequiredSigners = %v, want %v", got, tc.want)
			}
			for idx := range got {
				if got[idx] != tc.want[idx] {
					t.Fatalf("RequiredSigners = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestRequiredSignersIgnoresEmptyNames(t *testing.T) {
	i := inspectionWith(false, false, false)
	i.Property.OwnerName = strPtr("")
	got := i.RequiredSigners()
	if len(got) != 1 || got[0] != SignerTypeInspector {
		t.Fatalf("an empty owner name must not create a required owner, got %v", got)
	}
}

func TestPendingAndAllRequiredSigned(t *testing.T) {
	now := time.Now().UTC()
	i := inspectionWith(true, true, false)

	if i.AllRequiredSigned() {
		t.Fatal("unsigned inspection reported all-signed")
	}

	i.InspectorSign = signedGroup(now)
	i.OwnerSign = signedGroup(now)
	pending := i.PendingSigners()
	if len(pending) != 1 || pending[0] != SignerTypeTenant {
		t.Fatalf("PendingSigners = %v, want [tenant]", pending)
	}

	i.TenantSign = signedGroup(now)
	if !i.AllRequiredSigned() {
		t.Fatal("all required parties signed but AllRequiredSigned is false")
	}
}

func TestAllRequiredSignedIgnoresOptionalParties(t *testing.T) {
	now := time.Now().UTC()
	// Vacant unit without owner contact: inspector alone completes the set.
	i := inspectionWith(false, false, false)
	i.InspectorSign = signedGroup(now)

	if !i.AllRequiredSigned() {
		t.Fatal("inspector-only inspection should be complete after one signature")
	}
}

func TestHasAnySignature(t *testing.T) {
	i := inspectionWith(true, true, true)
	if i.HasAnySignature() {
		t.Fatal("fresh inspection must not report a signature")
	}
	i.AgencySign = signedGroup(time.Now().UTC())
	if !i.HasAnySignature() {
		t.Fatal("agency signature must count as a signature")
	}
}

func TestPartialGroupIsNotSigned(t *testing.T) {
	// SignedAt without blob (or blob without SignedAt) must never count.
	now := time.Now().UTC()
	if (PartySignature{SignedAt: &now}).IsSigned() {
		t.Fatal("timestamp-only group reported as signed")
	}
	if (PartySignature{Signature: "blob"}).IsSigned() {
		t.Fatal("blob-only group reported as signed")
	}
}

func TestAuditActionSigned(t *testing.T) {
	cases := []struct {
		signer  SignerType
		viaLink bool
		want    string
	}{
		{SignerTypeInspector, false, "SIGNED_BY_INSPECTOR"},
		{SignerTypeOwner, false, "SIGNED_BY_OWNER"},
		{SignerTypeTenant, true, "SIGNED_BY_TENANT_VIA_LINK"},
		{SignerTypeAgency, true, "SIGNED_BY_AGENCY_VIA_LINK"},
	}
	for _, tc := range cases {
		if got := AuditActionSigned(tc.signer, tc.viaLink); got != tc.want {
			t.Fatalf("AuditActionSigned(%s, %v) = %q, want %q", tc.signer, tc.viaLink, got, tc.want)
		}
	}
}

func TestSignatureLinkIsActive(t *testing.T) {
	now := time.Now().UTC()
	link := InspectionSignatureLink{ExpiresAt: now.Add(time.Hour)}
	if !link.IsActive(now) {
		t.Fatal("unused, unexpired link should be active")
	}

	used := link
	used.UsedAt = &now
	if used.IsActive(now) {
		t.Fatal("used link must not be active")
	}

	expired := link
	expired.ExpiresAt = now.Add(-time.Minute)
	if expired.IsActive(now) {
		t.Fatal("expired link must not be active")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []InspectionStatus{InspectionStatusDraft, InspectionStatusInProgress, InspectionStatusAwaitingSignature, InspectionStatusCompleted} {
		if s.IsTerminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []InspectionStatus{InspectionStatusApproved, InspectionStatusRejected} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
