package drive

import (
	"encoding/json"
	"strings"
)

// apiEnvelope carries the status fields shared by every web API response.
// The service is inconsistent about which field holds the failure text.
type apiEnvelope struct {
	State    bool            `json:"state"`
	Error    string          `json:"error"`
	ErrorMsg string          `json:"error_msg"`
	Msg      string          `json:"msg"`
	Errno    json.Number     `json:"errno"`
	ErrCode  json.Number     `json:"errcode"`
	RawError json.RawMessage `json:"error_code"`
}

func (e apiEnvelope) succeeded() bool { return e.State }

func (e apiEnvelope) failureMessage() string {
	for _, candidate := range []string{e.Error, e.ErrorMsg, e.Msg} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "request failed"
}

func (e apiEnvelope) errno() int {
	if n, err := e.Errno.Int64(); err == nil {
		return int(n)
	}
	if n, err := e.ErrCode.Int64(); err == nil {
		return int(n)
	}
	return 0
}

type statusReporter interface {
	succeeded() bool
	failureMessage() string
	errno() int
}

// Entry is one row of a directory listing. Directories carry a category id
// and no file id; files carry both.
type Entry struct {
	FileID   string      `json:"fid"`
	Category string      `json:"cid"`
	Parent   string      `json:"pid"`
	Name     string      `json:"n"`
	Size     json.Number `json:"s"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.FileID == "" }

// ID returns the identifier used when addressing the entry remotely.
func (e Entry) ID() string {
	if e.IsDir() {
		return e.Category
	}
	return e.FileID
}

// SizeBytes returns the entry size, zero for directories.
func (e Entry) SizeBytes() int64 {
	n, err := e.Size.Int64()
	if err != nil {
		return 0
	}
	return n
}

type getIDResponse struct {
	apiEnvelope
	ID json.Number `json:"id"`
}

type listFilesResponse struct {
	apiEnvelope
	Data  []Entry `json:"data"`
	Count int     `json:"count"`
}

type makeDirResponse struct {
	apiEnvelope
	CategoryID json.Number `json:"cid"`
}

type shareInfo struct {
	ShareTitle string      `json:"share_title"`
	ShareState json.Number `json:"share_state"`
}

type shareSnapResponse struct {
	apiEnvelope
	Data struct {
		ShareInfo shareInfo `json:"shareinfo"`
		List      []Entry   `json:"list"`
		Count     int       `json:"count"`
	} `json:"data"`
}

type receiveResponse struct {
	apiEnvelope
}

type accountInfoResponse struct {
	apiEnvelope
	Data struct {
		UserID   json.Number `json:"user_id"`
		UserName string      `json:"user_name"`
	} `json:"data"`
}
