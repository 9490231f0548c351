package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/RecoveryAshes/WikiCrawler/internal/models"
)

func openStores(t *testing.T) map[string]RecordStore {
	t.Helper()

	stores := make(map[string]RecordStore)
	for _, backend := range []string{BackendCSV, BackendSQLite} {
		s, err := Open(backend, t.TempDir())
		if err != nil {
			t.Fatalf("打开%s存储失败: %v", backend, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		stores[backend] = s
	}
	return stores
}

func TestRecordStore_RoundTrip(t *testing.T) {
	links := []string{"/wiki/Canada", "/wiki/Ontario", "/wiki/Quebec,_City", `/wiki/"Quoted"`}

	for backend, s := range openStores(t) {
		t.Run(backend, func(t *testing.T) {
			if ok, err := s.Exists(VisitedSetName); err != nil || ok {
				t.Fatalf("新存储不应存在记录集 (ok=%v, err=%v)", ok, err)
			}

			if err := s.Save(VisitedSetName, links); err != nil {
				t.Fatalf("保存失败: %v", err)
			}

			got, err := s.Load(VisitedSetName)
			if err != nil {
				t.Fatalf("读取失败: %v", err)
			}
			if !reflect.DeepEqual(got, links) {
				t.Errorf("期望%v, 实际%v", links, got)
			}
		})
	}
}

func TestRecordStore_Replace(t *testing.T) {
	for backend, s := range openStores(t) {
		t.Run(backend, func(t *testing.T) {
			_ = s.Save(FrontierSetName, []string{"/wiki/A", "/wiki/B", "/wiki/C"})
			if err := s.Save(FrontierSetName, []string{"/wiki/D"}); err != nil {
				t.Fatalf("覆盖保存失败: %v", err)
			}

			got, _ := s.Load(FrontierSetName)
			if !reflect.DeepEqual(got, []string{"/wiki/D"}) {
				t.Errorf("旧内容应该被替换, 实际%v", got)
			}
		})
	}
}

func TestRecordStore_EmptySet(t *testing.T) {
	for backend, s := range openStores(t) {
		t.Run(backend, func(t *testing.T) {
			if err := s.Save(FrontierSetName, nil); err != nil {
				t.Fatalf("保存空集合失败: %v", err)
			}

			ok, err := s.Exists(FrontierSetName)
			if err != nil || !ok {
				t.Errorf("空集合保存后应该存在 (ok=%v, err=%v)", ok, err)
			}

			got, err := s.Load(FrontierSetName)
			if err != nil {
				t.Fatalf("读取失败: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("期望空集合, 实际%v", got)
			}
		})
	}
}

func TestRecordStore_SetsAreIndependent(t *testing.T) {
	for backend, s := range openStores(t) {
		t.Run(backend, func(t *testing.T) {
			_ = s.Save(FrontierSetName, []string{"/wiki/A"})
			_ = s.Save(VisitedSetName, []string{"/wiki/B"})

			frontier, _ := s.Load(FrontierSetName)
			visited, _ := s.Load(VisitedSetName)
			if !reflect.DeepEqual(frontier, []string{"/wiki/A"}) || !reflect.DeepEqual(visited, []string{"/wiki/B"}) {
				t.Errorf("记录集互相干扰: frontier=%v visited=%v", frontier, visited)
			}
		})
	}
}

func TestCSVStore_Format(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSVStore(dir)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	if err := s.Save(VisitedSetName, []string{"/wiki/A", "/wiki/B"}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "used_links.csv"))
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	if got := string(data); got != "Links\n/wiki/A\n/wiki/B\n" {
		t.Errorf("CSV格式错误: %q", got)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("临时文件未清理: %s", e.Name())
		}
	}
}

func TestCSVStore_LoadWithoutHeader(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewCSVStore(dir)

	if err := os.WriteFile(s.Path(FrontierSetName), []byte("/wiki/A\n/wiki/B\n"), 0644); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	got, err := s.Load(FrontierSetName)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"/wiki/A", "/wiki/B"}) {
		t.Errorf("期望两条记录, 实际%v", got)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	_ = s.Save(VisitedSetName, []string{"/wiki/A"})
	_ = s.Close()

	s, err = NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	defer s.Close()

	got, _ := s.Load(VisitedSetName)
	if !reflect.DeepEqual(got, []string{"/wiki/A"}) {
		t.Errorf("重新打开后数据丢失: %v", got)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Error("未知后端应该返回错误")
	}
}

func TestContentLog_Append(t *testing.T) {
	dir := t.TempDir()
	cl, err := NewContentLog(ContentLogConfig{Dir: dir, FileName: "content.log"})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	blocks := []models.ContentBlock{
		{Link: "/wiki/Canada", Text: "Canada is a country."},
		{Link: "/wiki/Canada", Text: ""},
		{Link: "/wiki/Ontario", Text: "Ontario is a province."},
	}
	if err := cl.Append(blocks); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := cl.Append(blocks[:1]); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	_ = cl.Close()

	f, err := os.Open(filepath.Join(dir, "content.log"))
	if err != nil {
		t.Fatalf("打开日志失败: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("不是合法JSON: %s", scanner.Text())
		}
		lines = append(lines, entry)
	}

	if len(lines) != 4 {
		t.Fatalf("期望4行, 实际%d", len(lines))
	}
	if lines[2]["link"] != "/wiki/Ontario" || lines[2]["text"] != "Ontario is a province." {
		t.Errorf("第三行内容错误: %v", lines[2])
	}
	if _, ok := lines[1]["text"]; !ok {
		t.Error("空段落也应该写出text字段")
	}
	if lines[0]["time"] == nil {
		t.Error("缺少time字段")
	}
}
