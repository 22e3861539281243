package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
)

func TestNextDefectNoSequence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewDefectLogRepository(db)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	no, err := repo.NextDefectNo(ctx, db, date)
	if err != nil {
		t.Fatalf("NextDefectNo failed: %v", err)
	}
	if no != "DF20260310-0001" {
		t.Fatalf("expected DF20260310-0001, got %s", no)
	}

	// 落一条后序号递增
	if err := repo.Create(ctx, db, &entity.DefectLog{
		ID:         "log-0001",
		DefectNo:   no,
		PlantCd:    "P100",
		DefectForm: "F01",
		DefectDate: date,
		WorkCenter: "WC01",
		LineCd:     "L01",
		MaterialCd: "MAT-TEST-001",
		OrderNo:    "ORD-001",
		DefectQty:  5,
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	no, err = repo.NextDefectNo(ctx, db, date)
	if err != nil {
		t.Fatalf("NextDefectNo failed: %v", err)
	}
	if no != "DF20260310-0002" {
		t.Fatalf("expected DF20260310-0002, got %s", no)
	}

	// 序号按日期分段，换天从头计
	nextDay := date.AddDate(0, 0, 1)
	no, err = repo.NextDefectNo(ctx, db, nextDay)
	if err != nil {
		t.Fatalf("NextDefectNo failed: %v", err)
	}
	if no != "DF20260311-0001" {
		t.Fatalf("expected DF20260311-0001, got %s", no)
	}
}

func TestCreateDuplicateDefectNoIsUniqueViolation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewDefectLogRepository(db)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	first := &entity.DefectLog{
		ID: "log-0001", DefectNo: "DF20260310-0001",
		PlantCd: "P100", DefectForm: "F01", DefectDate: date,
		WorkCenter: "WC01", LineCd: "L01", MaterialCd: "MAT-TEST-001",
		OrderNo: "ORD-001", DefectQty: 5,
	}
	if err := repo.Create(ctx, db, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := &entity.DefectLog{
		ID: "log-0002", DefectNo: "DF20260310-0001",
		PlantCd: "P100", DefectForm: "F01", DefectDate: date,
		WorkCenter: "WC01", LineCd: "L01", MaterialCd: "MAT-TEST-001",
		OrderNo: "ORD-002", DefectQty: 3,
	}
	err := repo.Create(ctx, db, dup)
	if err == nil {
		t.Fatal("expected unique violation on duplicate defect_no")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected IsUniqueViolation true, got %v", err)
	}
}
