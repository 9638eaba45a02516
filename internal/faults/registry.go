package faults

import (
	"net/http"
	"sort"
)

// Code identifies a registry entry.
type Code string

// Severity ranks how urgently a failure needs attention.
type Severity string

// Category groups codes by the layer that produced them.
type Category string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryValidation     Category = "validation"
	CategoryProcessing     Category = "processing"
	CategoryRequest        Category = "request"
	CategoryNetwork        Category = "network"
	CategoryTimeout        Category = "timeout"
	CategoryFile           Category = "file"
	CategoryDatabase       Category = "database"
	CategoryStorage        Category = "storage"
	CategoryServer         Category = "server"
)

const (
	AuthSessionRequired Code = "AUTH-SESSION-001"
	AuthTokenInvalid    Code = "AUTH-TOKEN-001"
	UserNotApproved     Code = "AUTH-USER-001"

	FileRequired       Code = "UPLOAD-FILE-001"
	FileTooLarge       Code = "UPLOAD-FILE-002"
	InvalidFileType    Code = "UPLOAD-FILE-003"
	RequestFailed      Code = "UPLOAD-REQUEST-001"
	RequestCanceled    Code = "UPLOAD-REQUEST-002"
	ProcessFailed      Code = "UPLOAD-PROCESS-001"
	UploadStorageError Code = "UPLOAD-STORAGE-001"
	DBInsertFailed     Code = "UPLOAD-DB-001"
	UserRecordFailed   Code = "UPLOAD-DB-002"
	Unexpected         Code = "UPLOAD-SERVER-001"

	ResolutionTooLow Code = "IMAGE-RESOLUTION-001"
	ConversionFailed Code = "IMAGE-PROCESS-001"
	ImageLoadFailed  Code = "IMAGE-LOAD-001"
	Unfittable       Code = "IMAGE-COMPRESS-001"

	ClientNetwork Code = "CLIENT-NETWORK-001"
	ClientRequest Code = "CLIENT-REQUEST-001"
	ClientParse   Code = "CLIENT-PARSE-001"
	ClientTimeout Code = "CLIENT-TIMEOUT-001"
	ClientFile    Code = "CLIENT-FILE-001"

	StorageUnavailable Code = "STORAGE-UPLOAD-001"
	StorageContentType Code = "STORAGE-CONTENT-001"
	StorageTooLarge    Code = "STORAGE-SIZE-001"
	StorageRejected    Code = "STORAGE-REJECTED-001"
	StorageTimeout     Code = "STORAGE-TIMEOUT-001"
	StorageBadResponse Code = "STORAGE-RESPONSE-001"
)

// Definition is one immutable registry row.
type Definition struct {
	Code            Code     `json:"code"`
	Name            string   `json:"name"`
	Message         string   `json:"message"`
	HTTPStatus      int      `json:"httpStatus"`
	Severity        Severity `json:"severity"`
	Category        Category `json:"category"`
	Description     string   `json:"description"`
	TypicalCauses   []string `json:"typicalCauses"`
	Troubleshooting []string `json:"troubleshooting"`
}

// statusClientClosed is the non-standard status used when the caller gave up
// before the pipeline finished.
const statusClientClosed = 499

var registry = buildRegistry([]Definition{
	{
		Code:            AuthSessionRequired,
		Name:            "Unauthorized",
		Message:         "Authentication required. Please log in.",
		HTTPStatus:      http.StatusUnauthorized,
		Severity:        SeverityMedium,
		Category:        CategoryAuthentication,
		Description:     "User is not authenticated or session has expired.",
		TypicalCauses:   []string{"Session expired", "Missing authentication token", "Invalid credentials"},
		Troubleshooting: []string{"Log out and log back in", "Clear browser cookies", "Check if session is valid"},
	},
	{
		Code:            AuthTokenInvalid,
		Name:            "Invalid Token",
		Message:         "Invalid or expired authentication token.",
		HTTPStatus:      http.StatusUnauthorized,
		Severity:        SeverityMedium,
		Category:        CategoryAuthentication,
		Description:     "The provided authentication token is invalid or has expired.",
		TypicalCauses:   []string{"Expired token", "Malformed token", "Token not found"},
		Troubleshooting: []string{"Log out and log back in", "Request a new token"},
	},
	{
		Code:            UserNotApproved,
		Name:            "User Not Approved",
		Message:         "Your account is pending approval.",
		HTTPStatus:      http.StatusForbidden,
		Severity:        SeverityLow,
		Category:        CategoryAuthorization,
		Description:     "User account exists but has not been approved by an administrator.",
		TypicalCauses:   []string{"Account pending admin approval", "Account suspended"},
		Troubleshooting: []string{"Wait for admin approval", "Check the waitlist page", "Contact support"},
	},
	{
		Code:            FileRequired,
		Name:            "File Required",
		Message:         "No file provided. Please select an image to upload.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityLow,
		Category:        CategoryValidation,
		Description:     "The upload request did not include a file.",
		TypicalCauses:   []string{"No file selected", "File input empty", "Form data missing file field"},
		Troubleshooting: []string{"Select a file before uploading", "Check file input is working"},
	},
	{
		Code:            FileTooLarge,
		Name:            "File Too Large",
		Message:         "File exceeds the upload size limit. Please use a smaller image.",
		HTTPStatus:      http.StatusRequestEntityTooLarge,
		Severity:        SeverityLow,
		Category:        CategoryValidation,
		Description:     "The uploaded file exceeds the configured maximum upload size.",
		TypicalCauses:   []string{"File larger than the upload limit", "Uncompressed image"},
		Troubleshooting: []string{"Compress the image", "Use a smaller resolution", "Convert to JPEG format"},
	},
	{
		Code:            InvalidFileType,
		Name:            "Invalid File Type",
		Message:         "File type not supported. Please use JPEG, PNG, GIF, or WebP.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityLow,
		Category:        CategoryValidation,
		Description:     "The uploaded file is not a supported image format.",
		TypicalCauses:   []string{"Wrong file extension", "Corrupted file", "Non-image file"},
		Troubleshooting: []string{"Convert to JPEG or PNG", "Check file extension", "Verify file is a valid image"},
	},
	{
		Code:            RequestFailed,
		Name:            "Request Processing Failed",
		Message:         "Failed to process upload request. Please try again.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityMedium,
		Category:        CategoryRequest,
		Description:     "The server failed to parse or process the upload request.",
		TypicalCauses:   []string{"Malformed multipart body", "Body size limit exceeded", "Request timeout"},
		Troubleshooting: []string{"Try a smaller file", "Refresh the page", "Check network connection"},
	},
	{
		Code:            RequestCanceled,
		Name:            "Request Canceled",
		Message:         "The upload was canceled before it finished.",
		HTTPStatus:      statusClientClosed,
		Severity:        SeverityLow,
		Category:        CategoryRequest,
		Description:     "The caller abandoned the request while the pipeline was still running.",
		TypicalCauses:   []string{"User navigated away", "Client closed the connection"},
		Troubleshooting: []string{"Stay on the page until the upload completes", "Try again"},
	},
	{
		Code:            ProcessFailed,
		Name:            "Image Processing Failed",
		Message:         "Failed to process image. The file may be corrupted or unsupported.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityMedium,
		Category:        CategoryProcessing,
		Description:     "The server failed to process the uploaded image.",
		TypicalCauses:   []string{"Corrupted image file", "Unsupported format", "Invalid image data"},
		Troubleshooting: []string{"Try a different image", "Verify image is not corrupted", "Use a standard format (JPEG/PNG)"},
	},
	{
		Code:            UploadStorageError,
		Name:            "Storage Upload Failed",
		Message:         "Failed to upload to storage. Please try again.",
		HTTPStatus:      http.StatusInternalServerError,
		Severity:        SeverityHigh,
		Category:        CategoryStorage,
		Description:     "The image was processed but failed to upload to storage.",
		TypicalCauses:   []string{"Storage service unavailable", "Network error to storage", "Storage quota exceeded"},
		Troubleshooting: []string{"Try again in a few moments", "Check file size", "Contact support if persists"},
	},
	{
		Code:            DBInsertFailed,
		Name:            "Database Insert Failed",
		Message:         "Image uploaded but failed to save record. Please try uploading again.",
		HTTPStatus:      http.StatusInternalServerError,
		Severity:        SeverityHigh,
		Category:        CategoryDatabase,
		Description:     "The image record could not be written to the database.",
		TypicalCauses:   []string{"Database connection error", "Constraint violation", "Database timeout"},
		Troubleshooting: []string{"Try uploading again", "Check if image appears in storage", "Contact support"},
	},
	{
		Code:            UserRecordFailed,
		Name:            "User Record Creation Failed",
		Message:         "Failed to create user record. Please try again or contact support.",
		HTTPStatus:      http.StatusInternalServerError,
		Severity:        SeverityHigh,
		Category:        CategoryDatabase,
		Description:     "Failed to create or retrieve user record in the database.",
		TypicalCauses:   []string{"Database connection error", "User creation constraint violation"},
		Troubleshooting: []string{"Try again", "Contact support with error code"},
	},
	{
		Code:            Unexpected,
		Name:            "Unexpected Server Error",
		Message:         "An unexpected error occurred. Please try again.",
		HTTPStatus:      http.StatusInternalServerError,
		Severity:        SeverityCritical,
		Category:        CategoryServer,
		Description:     "An unexpected server error occurred during upload.",
		TypicalCauses:   []string{"Server configuration error", "Unhandled failure", "Resource exhaustion"},
		Troubleshooting: []string{"Try again", "Contact support with error code", "Check server status"},
	},
	{
		Code:            ResolutionTooLow,
		Name:            "Resolution Too Low",
		Message:         "Image resolution must be at least 1080p (1920x1080).",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityLow,
		Category:        CategoryValidation,
		Description:     "The uploaded image resolution is below the minimum required 1080p.",
		TypicalCauses:   []string{"Image smaller than 1920x1080", "Low resolution source"},
		Troubleshooting: []string{"Use an image with at least 1920x1080 resolution", "Check image dimensions"},
	},
	{
		Code:            ConversionFailed,
		Name:            "Image Conversion Failed",
		Message:         "Failed to convert image. Try a different image format.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityMedium,
		Category:        CategoryProcessing,
		Description:     "The server failed to convert the image to the required format.",
		TypicalCauses:   []string{"Unsupported format", "Corrupted image", "Invalid image data"},
		Troubleshooting: []string{"Use JPEG or PNG format", "Verify image is not corrupted", "Try a different image"},
	},
	{
		Code:            ImageLoadFailed,
		Name:            "Image Load Failed",
		Message:         "Failed to load image. The file may be corrupted.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityMedium,
		Category:        CategoryProcessing,
		Description:     "The image bytes could not be decoded.",
		TypicalCauses:   []string{"Corrupted file", "Invalid image data", "Unsupported format"},
		Troubleshooting: []string{"Try a different image file", "Verify file is not corrupted", "Use a standard format"},
	},
	{
		Code:            Unfittable,
		Name:            "Image Too Large To Compress",
		Message:         "The image could not be compressed under the upload size limit.",
		HTTPStatus:      http.StatusRequestEntityTooLarge,
		Severity:        SeverityMedium,
		Category:        CategoryProcessing,
		Description:     "Quality and dimension reduction reached their limits without fitting the upload budget.",
		TypicalCauses:   []string{"Extremely detailed or noisy image", "Upload budget configured too small"},
		Troubleshooting: []string{"Crop the image", "Export at a lower resolution before uploading"},
	},
	{
		Code:            ClientNetwork,
		Name:            "Network Error",
		Message:         "Network error occurred. Check your connection and try again.",
		HTTPStatus:      0,
		Severity:        SeverityMedium,
		Category:        CategoryNetwork,
		Description:     "A network error occurred during the upload request.",
		TypicalCauses:   []string{"No internet connection", "Network timeout", "Connection interrupted"},
		Troubleshooting: []string{"Check internet connection", "Try again", "Check network settings"},
	},
	{
		Code:            ClientRequest,
		Name:            "Upload Request Failed",
		Message:         "Upload request failed. Check your connection and try again.",
		HTTPStatus:      0,
		Severity:        SeverityMedium,
		Category:        CategoryRequest,
		Description:     "The upload request failed with a non-success status code.",
		TypicalCauses:   []string{"Server error", "Authentication failure", "Request timeout"},
		Troubleshooting: []string{"Check internet connection", "Try again", "Check error details"},
	},
	{
		Code:            ClientParse,
		Name:            "Response Parse Failed",
		Message:         "Failed to parse server response. Check connection and try again.",
		HTTPStatus:      0,
		Severity:        SeverityMedium,
		Category:        CategoryRequest,
		Description:     "The server response could not be parsed as JSON.",
		TypicalCauses:   []string{"Invalid JSON response", "Network interruption", "Server error"},
		Troubleshooting: []string{"Check connection", "Try again"},
	},
	{
		Code:            ClientTimeout,
		Name:            "Upload Timeout",
		Message:         "Upload timed out. File may be too large or connection too slow.",
		HTTPStatus:      0,
		Severity:        SeverityMedium,
		Category:        CategoryTimeout,
		Description:     "The upload request exceeded the client timeout.",
		TypicalCauses:   []string{"File too large", "Slow connection", "Network issues"},
		Troubleshooting: []string{"Use a smaller file", "Check connection speed", "Try again on better network"},
	},
	{
		Code:            ClientFile,
		Name:            "File Read Failed",
		Message:         "Failed to read file. Try selecting the file again.",
		HTTPStatus:      0,
		Severity:        SeverityLow,
		Category:        CategoryFile,
		Description:     "The client failed to read the selected file.",
		TypicalCauses:   []string{"File access denied", "File locked", "File system error"},
		Troubleshooting: []string{"Select the file again", "Check file permissions", "Try a different file"},
	},
	{
		Code:            StorageUnavailable,
		Name:            "Storage Upload Failed",
		Message:         "Failed to upload to storage. Please try again.",
		HTTPStatus:      http.StatusBadGateway,
		Severity:        SeverityHigh,
		Category:        CategoryStorage,
		Description:     "The object store could not be reached or failed while storing the image.",
		TypicalCauses:   []string{"Storage service unavailable", "Storage quota exceeded", "Network error"},
		Troubleshooting: []string{"Try again", "Check file size", "Contact support"},
	},
	{
		Code:            StorageContentType,
		Name:            "Invalid Content Type",
		Message:         "File type not supported. Use JPEG, PNG, GIF, or WebP.",
		HTTPStatus:      http.StatusBadRequest,
		Severity:        SeverityLow,
		Category:        CategoryValidation,
		Description:     "The storage boundary rejected the object because of its content type.",
		TypicalCauses:   []string{"Wrong content type header", "Unsupported format"},
		Troubleshooting: []string{"Use JPEG or PNG format", "Check file extension"},
	},
	{
		Code:            StorageTooLarge,
		Name:            "File Too Large for Storage",
		Message:         "File exceeds storage limit. Use a smaller image.",
		HTTPStatus:      http.StatusRequestEntityTooLarge,
		Severity:        SeverityLow,
		Category:        CategoryValidation,
		Description:     "The object exceeds the storage size ceiling.",
		TypicalCauses:   []string{"Object larger than the configured ceiling"},
		Troubleshooting: []string{"Compress the image", "Use a smaller resolution"},
	},
	{
		Code:            StorageRejected,
		Name:            "Storage Rejected Upload",
		Message:         "Storage refused the upload.",
		HTTPStatus:      http.StatusBadGateway,
		Severity:        SeverityHigh,
		Category:        CategoryStorage,
		Description:     "The object store answered the PUT with a client-error status.",
		TypicalCauses:   []string{"Storage credentials revoked", "Key rejected by storage policy", "Payload refused"},
		Troubleshooting: []string{"Check storage configuration", "Contact support with error code"},
	},
	{
		Code:            StorageTimeout,
		Name:            "Storage Timeout",
		Message:         "Upload to storage timed out. Please try again.",
		HTTPStatus:      http.StatusGatewayTimeout,
		Severity:        SeverityMedium,
		Category:        CategoryTimeout,
		Description:     "The storage PUT did not finish within the transport timeout.",
		TypicalCauses:   []string{"Slow storage endpoint", "Network congestion"},
		Troubleshooting: []string{"Try again", "Check storage service status"},
	},
	{
		Code:            StorageBadResponse,
		Name:            "Storage Response Invalid",
		Message:         "Storage returned an unreadable response.",
		HTTPStatus:      http.StatusBadGateway,
		Severity:        SeverityHigh,
		Category:        CategoryStorage,
		Description:     "The object store acknowledged the upload but its response body could not be decoded.",
		TypicalCauses:   []string{"Storage proxy returned HTML", "Truncated response"},
		Troubleshooting: []string{"Check the storage endpoint", "Run a reconcile sweep"},
	},
})

func buildRegistry(defs []Definition) map[Code]Definition {
	out := make(map[Code]Definition, len(defs))
	for _, def := range defs {
		if _, dup := out[def.Code]; dup {
			panic("faults: duplicate code " + string(def.Code))
		}
		out[def.Code] = def
	}
	return out
}

// Lookup returns the definition registered for code.
func Lookup(code Code) (Definition, bool) {
	def, ok := registry[code]
	if !ok {
		return Definition{}, false
	}
	return cloneDefinition(def), true
}

// IsValid reports whether code exists in the registry.
func IsValid(code Code) bool {
	_, ok := registry[code]
	return ok
}

// All returns every definition sorted by code.
func All() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, def := range registry {
		out = append(out, cloneDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ByCategory returns the definitions in category sorted by code.
func ByCategory(category Category) []Definition {
	return filter(func(def Definition) bool { return def.Category == category })
}

// BySeverity returns the definitions with severity sorted by code.
func BySeverity(severity Severity) []Definition {
	return filter(func(def Definition) bool { return def.Severity == severity })
}

func filter(keep func(Definition) bool) []Definition {
	var out []Definition
	for _, def := range All() {
		if keep(def) {
			out = append(out, def)
		}
	}
	return out
}

// cloneDefinition copies the slices so callers cannot mutate the registry.
func cloneDefinition(def Definition) Definition {
	def.TypicalCauses = append([]string(nil), def.TypicalCauses...)
	def.Troubleshooting = append([]string(nil), def.Troubleshooting...)
	return def
}
