package faults

// RejectionRedirect is the dedicated page clients send users to when their
// image was refused by the resolution policy.
const RejectionRedirect = "/upload/rejected"

// Body is the JSON failure shape returned to callers.
type Body struct {
	Error      string `json:"error"`
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"httpStatus"`
	Details    string `json:"details,omitempty"`
	URL        string `json:"url,omitempty"`
	Rejected   bool   `json:"rejected,omitempty"`
	Redirect   string `json:"redirect,omitempty"`
}

// Response maps err onto the failure body. Unknown errors report as
// UPLOAD-SERVER-001. Details carries the internal cause only when
// includeDetails is set.
func Response(err error, includeDetails bool) Body {
	fe := From(err)
	if fe == nil {
		fe = New(Unexpected, "", nil)
	}
	def, ok := registry[fe.Code]
	if !ok {
		def = registry[Unexpected]
	}
	body := Body{
		Error:      def.Name,
		Code:       def.Code,
		Message:    def.Message,
		HTTPStatus: def.HTTPStatus,
		URL:        fe.URL,
	}
	if body.HTTPStatus == 0 {
		body.HTTPStatus = 500
	}
	if includeDetails {
		body.Details = fe.Error()
	}
	if def.Code == ResolutionTooLow {
		body.Rejected = true
		body.Redirect = RejectionRedirect
	}
	return body
}
