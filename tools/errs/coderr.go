package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error codes for the messaging client. Timeout is related to Fetch so
// errs.ErrFetch.Is(err) also matches a timeout.
const (
	ConnectionErrorCode   = 10001
	FetchErrorCode        = 10002
	TimeoutErrorCode      = 10003
	ParseErrorCode        = 10004
	AuthRejectedErrorCode = 10005
)

var (
	ErrConnection   = NewCodeError(ConnectionErrorCode, "connection error")
	ErrFetch        = NewCodeError(FetchErrorCode, "fetch error")
	ErrTimeout      = NewCodeError(TimeoutErrorCode, "request timed out")
	ErrParse        = NewCodeError(ParseErrorCode, "parse error")
	ErrAuthRejected = NewCodeError(AuthRejectedErrorCode, "auth rejected")
)

var DefaultCodeRelation = newCodeRelation()

func init() {
	// a timeout is a kind of fetch failure
	_ = DefaultCodeRelation.Add(FetchErrorCode, TimeoutErrorCode)
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) ECode() int      { return e.Code }
func (e *CodeError) EMsg() string    { return e.Msg }
func (e *CodeError) EDetail() string { return e.Detail }

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	ret := e.clone()
	if ret.Detail == "" {
		ret.Detail = detail
	} else {
		ret.Detail += ", " + detail
	}
	return ret
}

// WrapMsg returns a copy of the error with extra detail appended.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	ret := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if ret.Detail == "" {
			ret.Detail = detail
		} else {
			ret.Detail += ", " + detail
		}
	}
	return ret
}

// Wrap attaches err as detail, keeping the code matchable via Is.
func (e *CodeError) Wrap(err error) error {
	if err == nil {
		return nil
	}
	return e.WithDetail(err.Error())
}

func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !errors.As(Unwrap(err), &codeErr) {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	if e.Code == codeErr.Code {
		return true
	}
	return DefaultCodeRelation.Is(e.Code, codeErr.Code)
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func Unwrap(err error) error {
	for err != nil {
		unwrap, ok := err.(interface {
			error
			Unwrap() error
		})
		if !ok {
			break
		}
		inner := unwrap.Unwrap()
		if inner == nil {
			return unwrap
		}
		err = inner
	}
	return err
}

func New(s string) error { return errors.New(s) }

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i > 0 || msg != "" {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		}
	}
	return sb.String()
}
