package procurement

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopledger/shopledger/internal/shared"
)

// PerformQualityControl records an inspection pass, projects the approved
// quantity onto the item and credits stock for it. The inspection and the
// stock credit commit together.
func (s *Service) PerformQualityControl(ctx context.Context, input InspectionInput) (InspectionResult, error) {
	if input.ItemID <= 0 {
		return InspectionResult{}, shared.Invalid("item_id", "required")
	}
	inspector := strings.TrimSpace(input.InspectorID)
	if inspector == "" {
		return InspectionResult{}, shared.Invalid("inspector_id", "required")
	}
	if input.ApprovedQuantity < 0 {
		return InspectionResult{}, shared.Invalid("approved_quantity", "must not be negative")
	}
	if input.RejectedQuantity < 0 {
		return InspectionResult{}, shared.Invalid("rejected_quantity", "must not be negative")
	}
	if input.ApprovedQuantity == 0 && input.RejectedQuantity == 0 {
		return InspectionResult{}, shared.Invalid("approved_quantity", "approved and rejected quantities cannot both be zero")
	}
	defects := cleanDefects(input.Defects)

	var result InspectionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItem(ctx, input.ItemID)
		if err != nil {
			return err
		}
		po, err := tx.LockOrder(ctx, item.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status == POStatusCancelled {
			return invalidState("cannot inspect items of a cancelled purchase order")
		}
		if !s.policy.AllowOverApproval {
			if input.ApprovedQuantity > item.QuantityReceived {
				return shared.Invalid("approved_quantity", fmt.Sprintf("%.3f exceeds the %.3f received", input.ApprovedQuantity, item.QuantityReceived))
			}
			if input.ApprovedQuantity+input.RejectedQuantity > item.QuantityReceived {
				return shared.Invalid("rejected_quantity", fmt.Sprintf("approved plus rejected exceeds the %.3f received", item.QuantityReceived))
			}
		}

		record, err := tx.InsertInspection(ctx, QualityControlRecord{
			PurchaseOrderItemID: item.ID,
			InspectorID:         inspector,
			InspectionDate:      s.now().UTC(),
			Status:              DeriveInspectionStatus(input.ApprovedQuantity, input.RejectedQuantity),
			ApprovedQuantity:    input.ApprovedQuantity,
			RejectedQuantity:    input.RejectedQuantity,
			Notes:               strings.TrimSpace(input.Notes),
			DefectsFound:        defects,
		})
		if err != nil {
			return err
		}
		if err := tx.SetItemApproved(ctx, item.ID, input.ApprovedQuantity); err != nil {
			return err
		}
		item.QuantityApproved = input.ApprovedQuantity

		if input.ApprovedQuantity > 0 {
			if _, err := tx.Stock().Credit(ctx, item.ProductID, input.ApprovedQuantity, StockCreditReason); err != nil {
				return err
			}
		}
		result = InspectionResult{Record: record, Item: item, StockCredited: input.ApprovedQuantity}
		return nil
	})
	if err != nil {
		return InspectionResult{}, shared.Persistence("procurement: quality control", err)
	}
	s.recordAudit(ctx, "po.item.inspect", result.Item.PurchaseOrderID, map[string]any{
		"item_id":  result.Item.ID,
		"status":   string(result.Record.Status),
		"approved": result.Record.ApprovedQuantity,
		"rejected": result.Record.RejectedQuantity,
	})
	return result, nil
}

// ListInspections returns every inspection of an item, oldest first.
func (s *Service) ListInspections(ctx context.Context, itemID int64) ([]QualityControlRecord, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, shared.Persistence("procurement: get item", err)
	}
	records, err := s.repo.ListInspections(ctx, itemID)
	if err != nil {
		return nil, shared.Persistence("procurement: list inspections", err)
	}
	return records, nil
}

func cleanDefects(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
