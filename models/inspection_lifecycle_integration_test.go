package models_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/models"
	"github.com/habitaflow/rentals_backend/utils"
	"github.com/habitaflow/rentals_backend/workflow"
	"gorm.io/gorm"
)

func TestInspectionSignatureLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "habitaflow_test")
	t.Setenv("FRONTEND_URL", "https://app.habitaflow.test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	agency, err := models.CreateAgency(ctx, &models.NewAgency{Name: "Test Agency"})
	if err != nil {
		t.Fatalf("CreateAgency: %v", err)
	}
	inspector, err := models.CreateUser(ctx, &models.NewUser{
		Name:     "Test Inspector",
		Email:    "inspector@test.local",
		Password: "test-password",
		AgencyId: &agency.ID,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	ownerName := "Owner One"
	tenantName := "Tenant One"
	tenantEmail := "tenant@test.local"
	property, err := models.CreateProperty(ctx, &models.NewProperty{
		Reference:   "TEST-APT-1",
		Address:     "1 test street",
		City:        "Lyon",
		PostalCode:  "69001",
		OwnerName:   &ownerName,
		TenantName:  &tenantName,
		TenantEmail: &tenantEmail,
		AgencyId:    &agency.ID,
	})
	if err != nil {
		t.Fatalf("CreateProperty: %v", err)
	}

	inspection, err := models.CreateInspection(ctx, &models.NewInspection{
		Type:        models.InspectionTypeMoveIn,
		PropertyId:  property.ID,
		AgencyId:    &agency.ID,
		InspectorId: inspector.ID,
		ScheduledAt: time.Now().UTC(),
		Items: []models.NewInspectionItem{
			{Room: "Kitchen", Label: "Oven", Condition: models.ItemConditionGood},
		},
	})
	if err != nil {
		t.Fatalf("CreateInspection: %v", err)
	}
	if !strings.HasPrefix(inspection.PublicToken, "HAB-MOVEIN-") {
		t.Fatalf("unexpected public token %q", inspection.PublicToken)
	}

	// All four parties are required: inspector always, owner and tenant from
	// the property, agency from the inspection.
	status, err := workflow.GetSignatureStatus(ctx, inspection.ID)
	if err != nil {
		t.Fatalf("GetSignatureStatus: %v", err)
	}
	if len(status.Required) != 4 {
		t.Fatalf("required = %v, want 4 parties", status.Required)
	}

	blob := signatureBlob(t)
	lat, lng := 45.76, 4.83
	input := workflow.SignatureInput{
		SignatureBlob: blob,
		ClientIP:      "10.0.0.1",
		UserAgent:     "go-test",
		GeoLat:        &lat,
		GeoLng:        &lng,
	}

	outcome, err := workflow.ApplySignature(ctx, inspection.ID, models.SignerTypeInspector, input)
	if err != nil {
		t.Fatalf("ApplySignature(inspector): %v", err)
	}
	if outcome.Status != models.InspectionStatusAwaitingSignature {
		t.Fatalf("status after first signature = %s, want AWAITING_SIGNATURE", outcome.Status)
	}
	if outcome.AllComplete {
		t.Fatal("one signature of four must not report all-complete")
	}

	// Second inspector signature is a hard conflict.
	if _, err := workflow.ApplySignature(ctx, inspection.ID, models.SignerTypeInspector, input); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("duplicate signature: got %v, want Conflict", err)
	}

	// Missing geolocation is rejected up front.
	noGeo := input
	noGeo.GeoLat = nil
	if _, err := workflow.ApplySignature(ctx, inspection.ID, models.SignerTypeOwner, noGeo); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("signature without geolocation: got %v, want InvalidInput", err)
	}

	// Items are frozen once any signature exists.
	notes := "edited"
	if _, err := models.UpdateInspection(ctx, inspection.ID, &models.UpdateInspectionInput{Notes: &notes}); !errors.Is(err, utils.ErrForbidden) {
		t.Fatalf("edit after signature: got %v, want Forbidden", err)
	}

	// Concurrent owner signatures: exactly one wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := workflow.ApplySignature(ctx, inspection.ID, models.SignerTypeOwner, input); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("concurrent owner signatures: %d successes, want exactly 1", successes)
	}

	// Tenant signs through a single-use link.
	link, err := models.CreateSignatureLink(ctx, inspection.ID, &models.NewSignatureLink{
		SignerType:  models.SignerTypeTenant,
		SignerEmail: tenantEmail,
		SignerName:  tenantName,
	})
	if err != nil {
		t.Fatalf("CreateSignatureLink: %v", err)
	}
	if link.Reused {
		t.Fatal("first link issuance must not be flagged as reused")
	}

	// Re-issuing while the link is active returns the same token.
	again, err := models.CreateSignatureLink(ctx, inspection.ID, &models.NewSignatureLink{
		SignerType:  models.SignerTypeTenant,
		SignerEmail: tenantEmail,
	})
	if err != nil {
		t.Fatalf("CreateSignatureLink(reissue): %v", err)
	}
	if !again.Reused || again.Token != link.Token {
		t.Fatalf("active link must be reused, got reused=%v token match=%v", again.Reused, again.Token == link.Token)
	}

	validation, err := models.ValidateSignatureLink(ctx, link.Token)
	if err != nil || !validation.Valid {
		t.Fatalf("ValidateSignatureLink: err=%v valid=%v", err, validation != nil && validation.Valid)
	}

	// External signers must consent to geolocation capture.
	linkInput := input
	if _, err := workflow.ApplySignatureViaLink(ctx, link.Token, linkInput); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("link signature without consent: got %v, want InvalidInput", err)
	}
	// Concurrent submissions of the same link: the consumption is guarded, so
	// exactly one wins and every loser sees the already-used conflict.
	linkInput.GeoConsent = utils.NewTrue()
	linkSuccesses := 0
	var linkErrs []error
	var linkWg sync.WaitGroup
	for i := 0; i < 6; i++ {
		linkWg.Add(1)
		go func() {
			defer linkWg.Done()
			_, err := workflow.ApplySignatureViaLink(ctx, link.Token, linkInput)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				linkSuccesses++
			} else {
				linkErrs = append(linkErrs, err)
			}
		}()
	}
	linkWg.Wait()
	if linkSuccesses != 1 {
		t.Fatalf("concurrent link submissions: %d successes, want exactly 1", linkSuccesses)
	}
	for _, err := range linkErrs {
		if !errors.Is(err, utils.ErrConflict) {
			t.Fatalf("losing link submission: got %v, want Conflict", err)
		}
	}

	// The link stays consumed.
	if _, err := workflow.ApplySignatureViaLink(ctx, link.Token, linkInput); !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("reusing consumed link: got %v, want Conflict", err)
	}

	// Agency completes the set.
	outcome, err = workflow.ApplySignature(ctx, inspection.ID, models.SignerTypeAgency, input)
	if err != nil {
		t.Fatalf("ApplySignature(agency): %v", err)
	}
	if !outcome.AllComplete {
		t.Fatalf("all parties signed, outcome = %+v", outcome)
	}

	// Signing never finalizes implicitly.
	refreshed, err := models.GetInspection(ctx, inspection.ID)
	if err != nil {
		t.Fatalf("GetInspection: %v", err)
	}
	if refreshed.HashFinal != nil {
		t.Fatal("hash_final must stay unset until Finalize runs")
	}
	if refreshed.Status != models.InspectionStatusAwaitingSignature {
		t.Fatalf("status = %s, want AWAITING_SIGNATURE", refreshed.Status)
	}

	// Public verification surface: reachable by token, no final hash yet.
	summary, err := models.GetVerificationSummary(ctx, inspection.PublicToken)
	if err != nil {
		t.Fatalf("GetVerificationSummary: %v", err)
	}
	if summary.HashFinal != nil {
		t.Fatal("summary must not carry a final hash before finalization")
	}
	if len(summary.SignedParties) != 4 {
		t.Fatalf("signed parties = %v, want 4", summary.SignedParties)
	}
	if summary.AddressFragment != "Lyon 69001" {
		t.Fatalf("address fragment = %q, leaks more than city + postal code", summary.AddressFragment)
	}

	verification, err := models.VerifyHashByToken(ctx, inspection.PublicToken, "sha256:deadbeef")
	if err != nil {
		t.Fatalf("VerifyHashByToken: %v", err)
	}
	if verification.Valid {
		t.Fatal("hash verification must fail while no final hash exists")
	}

	// Audit trail carries the full story, oldest first.
	entries, err := models.ListInspectionAudit(ctx, inspection.ID)
	if err != nil {
		t.Fatalf("ListInspectionAudit: %v", err)
	}
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	for _, want := range []string{
		"SIGNED_BY_INSPECTOR", "SIGNED_BY_OWNER", "SIGNED_BY_TENANT_VIA_LINK",
		"SIGNED_BY_AGENCY", "SIGNATURE_LINK_CREATED",
	} {
		found := false
		for _, a := range actions {
			if a == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("audit trail %v is missing %s", actions, want)
		}
	}
}

func TestSignatureLinkRevocation(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "habitaflow_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	inspector, err := models.CreateUser(ctx, &models.NewUser{
		Name:     "Revoke Inspector",
		Email:    "revoke@test.local",
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ownerName := "Owner Two"
	ownerEmail := "owner2@test.local"
	property, err := models.CreateProperty(ctx, &models.NewProperty{
		Reference:  "TEST-APT-2",
		Address:    "2 test street",
		OwnerName:  &ownerName,
		OwnerEmail: &ownerEmail,
	})
	if err != nil {
		t.Fatalf("CreateProperty: %v", err)
	}
	inspection, err := models.CreateInspection(ctx, &models.NewInspection{
		Type:        models.InspectionTypeMoveOut,
		PropertyId:  property.ID,
		InspectorId: inspector.ID,
		ScheduledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateInspection: %v", err)
	}

	link, err := models.CreateSignatureLink(ctx, inspection.ID, &models.NewSignatureLink{
		SignerType:  models.SignerTypeOwner,
		SignerEmail: ownerEmail,
	})
	if err != nil {
		t.Fatalf("CreateSignatureLink: %v", err)
	}

	if err := models.RevokeSignatureLink(ctx, link.Token); err != nil {
		t.Fatalf("RevokeSignatureLink: %v", err)
	}

	validation, err := models.ValidateSignatureLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("ValidateSignatureLink: %v", err)
	}
	if !validation.Expired {
		t.Fatalf("revoked link must validate as expired, got %+v", validation)
	}

	// A new issuance after revocation mints a fresh token.
	fresh, err := models.CreateSignatureLink(ctx, inspection.ID, &models.NewSignatureLink{
		SignerType:  models.SignerTypeOwner,
		SignerEmail: ownerEmail,
	})
	if err != nil {
		t.Fatalf("CreateSignatureLink(after revoke): %v", err)
	}
	if fresh.Reused || fresh.Token == link.Token {
		t.Fatal("revoked token must not be re-issued")
	}
}

func TestInspectionMutationSerialization(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "habitaflow_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	inspector, err := models.CreateUser(ctx, &models.NewUser{
		Name:     "Serial Inspector",
		Email:    "serial@test.local",
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ownerName := "Owner Three"
	ownerEmail := "owner3@test.local"
	property, err := models.CreateProperty(ctx, &models.NewProperty{
		Reference:  "TEST-APT-3",
		Address:    "3 test street",
		OwnerName:  &ownerName,
		OwnerEmail: &ownerEmail,
	})
	if err != nil {
		t.Fatalf("CreateProperty: %v", err)
	}
	inspection, err := models.CreateInspection(ctx, &models.NewInspection{
		Type:        models.InspectionTypeMoveIn,
		PropertyId:  property.ID,
		InspectorId: inspector.ID,
		ScheduledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateInspection: %v", err)
	}

	// Concurrent issuance for one (inspection, signer): the find-then-create
	// dedup runs under the per-inspection lock, so exactly one row is created
	// and every caller walks away with the same token.
	var (
		mu      sync.Mutex
		tokens  = map[string]bool{}
		created int
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := models.CreateSignatureLink(ctx, inspection.ID, &models.NewSignatureLink{
				SignerType:  models.SignerTypeOwner,
				SignerEmail: ownerEmail,
			})
			if err != nil {
				t.Errorf("CreateSignatureLink: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			tokens[res.Token] = true
			if !res.Reused {
				created++
			}
		}()
	}
	wg.Wait()
	if len(tokens) != 1 {
		t.Fatalf("concurrent issuance produced %d distinct tokens, want 1", len(tokens))
	}
	if created != 1 {
		t.Fatalf("concurrent issuance created %d fresh links, want exactly 1", created)
	}

	db := config.GetDB()
	var activeLinks int64
	if err := db.Model(&models.InspectionSignatureLink{}).
		Where("inspection_id = ? AND signer_type = ? AND used_at IS NULL AND expires_at > ?",
			inspection.ID, models.SignerTypeOwner, time.Now().UTC()).
		Count(&activeLinks).Error; err != nil {
		t.Fatalf("count links: %v", err)
	}
	if activeLinks != 1 {
		t.Fatalf("active links = %d, want 1", activeLinks)
	}
	var token string
	for tk := range tokens {
		token = tk
	}

	// The advisory lock is held until after COMMIT: an edit started while a
	// locked transaction is in flight must wait for the holder to finish.
	held := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- models.WithInspectionLock(ctx, inspection.ID, func(tx *gorm.DB) error {
			close(held)
			time.Sleep(500 * time.Millisecond)
			return tx.Model(&models.Inspection{}).
				Where("id = ?", inspection.ID).
				UpdateColumn("notes", "written under lock").Error
		})
	}()
	<-held

	start := time.Now()
	notes := "edited afterwards"
	updated, err := models.UpdateInspection(ctx, inspection.ID, &models.UpdateInspectionInput{Notes: &notes})
	if err != nil {
		t.Fatalf("UpdateInspection: %v", err)
	}
	if waited := time.Since(start); waited < 300*time.Millisecond {
		t.Fatalf("edit finished after %v; it must wait for the lock holder", waited)
	}
	if err := <-done; err != nil {
		t.Fatalf("locked transaction: %v", err)
	}
	if updated.Notes != notes {
		t.Fatalf("notes = %q, want %q", updated.Notes, notes)
	}

	// The edit revoked the outstanding link: it was issued against content
	// that no longer exists.
	validation, err := models.ValidateSignatureLink(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSignatureLink: %v", err)
	}
	if !validation.Expired {
		t.Fatalf("link must be expired after an edit, got %+v", validation)
	}
}

func signatureBlob(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("rentals-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("rentals-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=habitaflow_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
