package control

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

type unitRequest struct {
	Name             string   `json:"name"`
	WorkingDirectory *string  `json:"working_directory,omitempty"`
	CommandLine      []string `json:"command_line,omitempty"`
	URL              *string  `json:"url,omitempty"`
	IntervalSeconds  *int     `json:"interval_seconds,omitempty"`
}

func newUnitRequest(name string, overrides unitconfig.Overrides) unitRequest {
	return unitRequest{
		Name:             name,
		WorkingDirectory: overrides.WorkingDirectory,
		CommandLine:      overrides.CommandLine,
		URL:              overrides.URL,
		IntervalSeconds:  overrides.IntervalSeconds,
	}
}

func (r unitRequest) overrides() unitconfig.Overrides {
	return unitconfig.Overrides{
		WorkingDirectory: r.WorkingDirectory,
		CommandLine:      r.CommandLine,
		URL:              r.URL,
		IntervalSeconds:  r.IntervalSeconds,
	}
}

type logsRequest struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

type statusResponse struct {
	Units []domain.UnitInfo `json:"units"`
}

type unitResponse struct {
	Unit domain.UnitInfo `json:"unit"`
}

type logsResponse struct {
	Lines []string `json:"lines"`
}

// toStruct converts a JSON-tagged value into a protobuf Struct
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// fromStruct fills the JSON-tagged value v from s
func fromStruct(s *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

var errorCodes = map[errors.ErrorType]codes.Code{
	errors.ErrorTypeNotFound:         codes.NotFound,
	errors.ErrorTypeAlreadyRunning:   codes.AlreadyExists,
	errors.ErrorTypeNotRunning:       codes.FailedPrecondition,
	errors.ErrorTypeValidation:       codes.InvalidArgument,
	errors.ErrorTypeSpawn:            codes.Aborted,
	errors.ErrorTypeConfigUnreadable: codes.DataLoss,
	errors.ErrorTypeTimeout:          codes.DeadlineExceeded,
	errors.ErrorTypePermission:       codes.PermissionDenied,
	errors.ErrorTypeCancelled:        codes.Canceled,
}

// toStatusError carries the domain error type across the wire in the status code
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, ok := errorCodes[errors.TypeOf(err)]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatusError restores a domain error from a gRPC status
func fromStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.NewInternalError("request failed", err)
	}
	for errorType, code := range errorCodes {
		if st.Code() == code {
			return errors.NewDomainError(errorType, trimTypePrefix(st.Message(), errorType), nil)
		}
	}
	if st.Code() == codes.Unavailable {
		return errors.NewIOError("server unavailable", err)
	}
	return errors.NewInternalError(st.Message(), nil)
}

func trimTypePrefix(message string, errorType errors.ErrorType) string {
	return strings.TrimPrefix(message, fmt.Sprintf("%s: ", errorType))
}
