package internal

// Request field tags as they appear under each rsExport element.
const (
	TagRequest          = "rsExport"
	TagItemID           = "itemId"
	TagTitle            = "title"
	TagBarcode          = "barcode"
	TagPatronName       = "patronName"
	TagPatronIdentifier = "patronIdentifier"
	TagRequestType      = "requestType"
	TagPhysicalLocation = "permanent_physical_location_code"
	TagLibrary          = "library"
	TagLibraryCode      = "libraryCode"
	TagRequestNote      = "requestNote"
	TagPartToDigitize   = "partToDigitize"
	TagDescription      = "description"
)

// RawFields holds every value pulled out of one request element.
// Missing elements are empty strings.
type RawFields struct {
	ItemID               string `json:"itemId"`
	ItemTitle            string `json:"title"`
	ItemBarcode          string `json:"barcode"`
	PatronName           string `json:"patronName"`
	PatronBarcode        string `json:"patronIdentifier"`
	PickupLibrary        string `json:"library"`
	LibraryCode          string `json:"libraryCode"`
	RequestType          string `json:"requestType"`
	PhysicalLocationCode string `json:"permanentPhysicalLocationCode"`
	RequestNote          string `json:"requestNote"`
	PartToDigitize       string `json:"partToDigitize"`
	Description          string `json:"description"`
}

// NormalizedRequest is one line of the GFA data file.
type NormalizedRequest struct {
	ItemID           string
	ItemBarcode      string
	DeliveryStopCode string
	LocationCode     string
	PatronName       string
	PatronBarcode    string
	ItemTitle        string
	RequestDate      string
	PatronNote       string
}

// Fields returns the values in output column order.
func (r NormalizedRequest) Fields() []string {
	return []string{
		r.ItemID,
		r.ItemBarcode,
		r.DeliveryStopCode,
		r.LocationCode,
		r.PatronName,
		r.PatronBarcode,
		r.ItemTitle,
		r.RequestDate,
		r.PatronNote,
	}
}

type BatchStatus string

const (
	BatchStarted   BatchStatus = "started"
	BatchProcessed BatchStatus = "processed"
	BatchFailed    BatchStatus = "failed"
)

type RequestStatus string

const (
	RequestOK     RequestStatus = "ok"
	RequestFailed RequestStatus = "failed"
)

type BatchRow struct {
	ID           int
	RunID        string
	SourceFile   string
	Stamp        string
	Status       string
	Count        int
	Error        *string
	OriginalPath string
	ParsedPath   *string
	CreatedAt    string
	UpdatedAt    string
}

type RequestRow struct {
	Seq    int
	Raw    RawFields
	Record *NormalizedRequest
	Status RequestStatus
	Error  *string
}

type RequestExportRow struct {
	BatchID   int
	Seq       int
	ItemID    string
	Status    string
	Error     *string
	Raw       RawFields
	Record    *NormalizedRequest
	CreatedAt string
}
