package pdfgen

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"
)

func testRenderData() RenderData {
	scheduled := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	generated := time.Date(2026, 2, 12, 15, 30, 0, 0, time.UTC)
	return RenderData{
		PublicToken:     "HAB-MOVEIN-2026-ABCD-EFGH",
		InspectionType:  "MOVEIN",
		PropertyAddress: "12 rue des Lilas",
		City:            "Lyon",
		ScheduledAt:     scheduled,
		GeneratedAt:     generated,
		Notes:           "Keys handed over at 9am",
		Items: []ItemLine{
			{Room: "Kitchen", Label: "Oven", Condition: "WORN", Comment: "Door hinge loose"},
			{Room: "Bathroom", Label: "Sink", Condition: "DAMAGED"},
			{Room: "Living room", Label: "Parquet floor", Condition: "GOOD"},
		},
		Parties: []PartyBlock{
			{Role: "inspector", Name: "Ines Perez"},
			{Role: "tenant", Name: "Lea Fontaine"},
		},
		VerificationURL: "https://app.habitaflow.example/verify/HAB-MOVEIN-2026-ABCD-EFGH",
	}
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestRenderIsByteDeterministic(t *testing.T) {
	data := testRenderData()

	first, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("two renders of identical data must produce identical bytes")
	}
}

func TestRenderOrdersItemsDeterministically(t *testing.T) {
	data := testRenderData()
	shuffled := testRenderData()
	shuffled.Items = []ItemLine{data.Items[2], data.Items[0], data.Items[1]}

	a, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Render(shuffled, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("item order in the input must not affect the rendered bytes")
	}
}

func TestRenderVariantsDiffer(t *testing.T) {
	data := testRenderData()

	final, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render final: %v", err)
	}
	provisional, err := Render(data, VariantProvisional)
	if err != nil {
		t.Fatalf("Render provisional: %v", err)
	}
	if bytes.Equal(final, provisional) {
		t.Fatal("provisional rendering must differ from the final one (watermark)")
	}
}

func TestRenderGeneratedAtChangesBytes(t *testing.T) {
	data := testRenderData()
	later := testRenderData()
	later.GeneratedAt = data.GeneratedAt.Add(time.Hour)

	a, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := Render(later, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("a different GeneratedAt must change the rendered bytes")
	}
}

func TestRenderWithSignatureImages(t *testing.T) {
	data := testRenderData()
	signedAt := time.Date(2026, 2, 12, 14, 0, 0, 0, time.UTC)
	data.Parties[0].SignedAt = &signedAt
	data.Parties[0].SignaturePNG = signaturePNG(t)

	first, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := Render(data, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("renders embedding signature images must stay deterministic")
	}

	unsigned := testRenderData()
	plain, err := Render(unsigned, VariantFinal)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bytes.Equal(first, plain) {
		t.Fatal("a signed party must change the rendered bytes")
	}
}
