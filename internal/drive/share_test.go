package drive_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"cloudsub/internal/drive"
)

func TestCheckShareReportsDeadShare(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/share/snap", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"state": false, "error": "分享已取消"})
	})
	client, _ := newTestClient(t, mux)

	status, err := client.CheckShare(context.Background(), "https://115.com/s/swdead?password=abcd")
	if err != nil {
		t.Fatalf("CheckShare: %v", err)
	}
	if status.Valid {
		t.Fatal("expected invalid share")
	}
	if !strings.Contains(status.Status, "分享已取消") {
		t.Fatalf("status = %q", status.Status)
	}
}

func TestListShareTreePrunesOtherSeasons(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/share/snap", func(w http.ResponseWriter, r *http.Request) {
		cid := r.URL.Query().Get("cid")
		switch cid {
		case "0":
			writeJSON(t, w, map[string]any{
				"state": true,
				"data": map[string]any{
					"shareinfo": map[string]any{"share_title": "Show", "share_state": 1},
					"count":     2,
					"list": []map[string]any{
						{"cid": "100", "n": "Show S01"},
						{"cid": "200", "n": "Show S02"},
					},
				},
			})
		case "100":
			writeJSON(t, w, map[string]any{
				"state": true,
				"data": map[string]any{
					"shareinfo": map[string]any{"share_state": 1},
					"count":     1,
					"list": []map[string]any{
						{"fid": "f1", "n": "Show.S01E01.mkv", "s": 1000},
					},
				},
			})
		default:
			t.Errorf("unexpected listing for cid %q", cid)
			writeJSON(t, w, map[string]any{
				"state": true,
				"data":  map[string]any{"count": 0, "list": []any{}},
			})
		}
	})
	client, _ := newTestClient(t, mux)

	forest, err := client.ListShareTree(context.Background(), "swcode", "abcd", drive.ListShareOptions{SeasonHint: 1})
	if err != nil {
		t.Fatalf("ListShareTree: %v", err)
	}
	if len(forest) != 1 {
		t.Fatalf("top-level nodes = %d, want 1 (season 2 pruned)", len(forest))
	}
	root := forest[0]
	if root.Name != "Show S01" || !root.IsDir {
		t.Fatalf("unexpected root node %+v", root)
	}
	if len(root.Children) != 1 || root.Children[0].Name != "Show.S01E01.mkv" {
		t.Fatalf("unexpected children %+v", root.Children)
	}
	if root.Children[0].Size != 1000 {
		t.Fatalf("child size = %d", root.Children[0].Size)
	}
}

func TestTransferDuplicateIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/getid", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"state": true, "id": 50})
	})
	mux.HandleFunc("/share/receive", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"state": false, "error": "文件已存在，不能重复转存"})
	})
	client, _ := newTestClient(t, mux)

	err := client.Transfer(context.Background(), "swcode", "abcd", "f1", "/media/tv/Show")
	if err != nil {
		t.Fatalf("Transfer: %v (duplicate must be success)", err)
	}
}

func TestTransferBatchSplitsFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/getid", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"state": true, "id": 50})
	})
	mux.HandleFunc("/share/receive", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		ids := r.PostForm.Get("file_id")
		switch {
		case strings.Contains(ids, ","):
			writeJSON(t, w, map[string]any{"state": false, "error": "部分文件转存失败"})
		case ids == "bad":
			writeJSON(t, w, map[string]any{"state": false, "error": "文件不存在"})
		default:
			writeJSON(t, w, map[string]any{"state": true})
		}
	})
	client, _ := newTestClient(t, mux)

	succeeded, failed, err := client.TransferBatch(context.Background(), "swcode", "abcd", []string{"good", "bad"}, "/media/tv/Show")
	if err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0] != "good" {
		t.Fatalf("succeeded = %v", succeeded)
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Fatalf("failed = %v", failed)
	}
}
