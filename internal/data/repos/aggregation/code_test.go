package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/aggregation-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
)

func TestCodeRepoConditionalUpdates(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCodeRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	productID := uuid.New()
	child := testutil.SeedOuter(t, ctx, tx, "o-"+uuid.NewString(), &productID)
	parent := testutil.SeedComposed(t, ctx, tx, "PKG-"+uuid.NewString(), domainagg.SubTypePackage)

	meta := domainagg.EnrichmentFrom(child)
	if ok, err := repo.MarkConfigured(dbc, parent.Value, meta, time.Now()); err != nil || !ok {
		t.Fatalf("first MarkConfigured: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.MarkConfigured(dbc, parent.Value, meta, time.Now()); err != nil || ok {
		t.Fatalf("second MarkConfigured must be a no-op: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetByValue(dbc, parent.Value)
	if !got.IsConfigured || got.ProductID == nil || *got.ProductID != productID || got.SupplierID != "supplier-1" {
		t.Fatalf("enrichment not applied: %+v", got)
	}

	data, _ := domainagg.ProductData{CycleNumber: 1, Position: 1, ParentCode: parent.Value}.JSON()
	if ok, err := repo.AttachProductData(dbc, child.Value, data); err != nil || !ok {
		t.Fatalf("AttachProductData: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.AttachProductData(dbc, child.Value, data); ok {
		t.Fatalf("product data overwritten")
	}

	for i := 0; i < 2; i++ {
		if _, err := repo.LinkParent(dbc, child.Value, parent.Value); err != nil {
			t.Fatalf("LinkParent: %v", err)
		}
	}
	got, _ = repo.GetByValue(dbc, child.Value)
	if got.DirectParent == nil || *got.DirectParent != parent.Value || len(got.Parents) != 1 {
		t.Fatalf("link not converged: direct=%v parents=%v", got.DirectParent, got.Parents)
	}

	if n, err := repo.MarkAggregated(dbc, []string{child.Value}); err != nil || n != 1 {
		t.Fatalf("MarkAggregated: n=%d err=%v", n, err)
	}
	if n, _ := repo.MarkAggregated(dbc, []string{child.Value}); n != 0 {
		t.Fatalf("MarkAggregated replay changed %d rows", n)
	}

	missing, err := repo.GetByValue(dbc, "nope-"+uuid.NewString())
	if err != nil || missing != nil {
		t.Fatalf("missing code: got=%v err=%v", missing, err)
	}
}
