package zcl

import "fmt"

// Status is a ZCL status code as carried in command responses.
type Status uint8

const (
	StatusSuccess               Status = 0x00
	StatusFailure               Status = 0x01
	StatusMalformedCommand      Status = 0x80
	StatusUnsupClusterCommand   Status = 0x81
	StatusUnsupGeneralCommand   Status = 0x82
	StatusUnsupportedAttribute  Status = 0x86
	StatusInvalidValue          Status = 0x87
	StatusReadOnly              Status = 0x88
	StatusInsufficientSpace     Status = 0x89
	StatusDuplicateExists       Status = 0x8A
	StatusNotFound              Status = 0x8B
	StatusUnreportableAttribute Status = 0x8C
	StatusInvalidDataType       Status = 0x8D
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusMalformedCommand:
		return "MALFORMED_COMMAND"
	case StatusUnsupClusterCommand:
		return "UNSUP_CLUSTER_COMMAND"
	case StatusUnsupGeneralCommand:
		return "UNSUP_GENERAL_COMMAND"
	case StatusUnsupportedAttribute:
		return "UNSUPPORTED_ATTRIBUTE"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusInsufficientSpace:
		return "INSUFFICIENT_SPACE"
	case StatusDuplicateExists:
		return "DUPLICATE_EXISTS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnreportableAttribute:
		return "UNREPORTABLE_ATTRIBUTE"
	case StatusInvalidDataType:
		return "INVALID_DATA_TYPE"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}
