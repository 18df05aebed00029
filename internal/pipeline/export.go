package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"annexparse/internal"
	"annexparse/internal/util"
)

var exportHeaders = []string{
	"batch_id", "seq", "status", "error",
	"item_id", "item_barcode", "delivery_stop_code", "location_code",
	"patron_name", "patron_barcode", "item_title", "request_date", "patron_note",
	"raw_library", "raw_library_code", "raw_request_type", "raw_physical_location_code",
	"raw_request_note", "raw_part_to_digitize", "raw_description",
	"created_at",
}

// ExportBatchToXLSX writes one row per request of a batch, successes and
// failures alike, next to the raw values they came from.
func ExportBatchToXLSX(rows []internal.RequestExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.BatchID)
		set(2, row.Seq)
		set(3, row.Status)
		set(4, util.Deref(row.Error))
		set(5, row.ItemID)
		if rec := row.Record; rec != nil {
			set(6, rec.ItemBarcode)
			set(7, rec.DeliveryStopCode)
			set(8, rec.LocationCode)
			set(9, rec.PatronName)
			set(10, rec.PatronBarcode)
			set(11, rec.ItemTitle)
			set(12, rec.RequestDate)
			set(13, rec.PatronNote)
		} else {
			set(6, row.Raw.ItemBarcode)
			set(9, row.Raw.PatronName)
			set(10, row.Raw.PatronBarcode)
			set(11, row.Raw.ItemTitle)
		}
		set(14, row.Raw.PickupLibrary)
		set(15, row.Raw.LibraryCode)
		set(16, row.Raw.RequestType)
		set(17, row.Raw.PhysicalLocationCode)
		set(18, row.Raw.RequestNote)
		set(19, row.Raw.PartToDigitize)
		set(20, row.Raw.Description)
		set(21, row.CreatedAt)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
