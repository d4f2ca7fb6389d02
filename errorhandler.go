package keel

import (
	json "github.com/json-iterator/go"

	"github.com/indigo-web/keel/channel"
	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/method"
	"github.com/indigo-web/keel/http/status"
	"github.com/indigo-web/keel/kv"
)

// DefaultErrorHandler renders machine-readable JSON error pages.
type DefaultErrorHandler struct{}

type errorPage struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

func (DefaultErrorHandler) ErrorPageForMethod(m method.Method) bool {
	return m != method.HEAD
}

func (DefaultErrorHandler) Handle(ch *channel.Channel, request *http.Request, response *http.Response) error {
	code := response.StatusCode()

	message := string(status.Text(code))
	if cause, ok := request.Attribute(http.AttrErrorCause).(error); ok {
		message = cause.Error()
	}

	response.JSON(errorPage{
		Status: int(code),
		Error:  message,
	})
	// JSON rendering falls back to 500 on failure; restore the error code
	response.Code(code)
	response.DeclareContentLength(int64(len(response.Body())))

	return nil
}

func (DefaultErrorHandler) BadMessageError(code status.Code, reason string, outHeaders *kv.Storage) []byte {
	if len(reason) == 0 {
		reason = string(status.Text(code))
	}

	body, err := json.Marshal(errorPage{
		Status: int(code),
		Error:  reason,
	})
	if err != nil {
		return nil
	}

	outHeaders.Set("Content-Type", "application/json")

	return body
}
