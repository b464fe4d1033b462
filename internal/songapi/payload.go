package songapi

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Stage 是回调载荷归一化后的任务阶段。
type Stage string

const (
	StageProcessing Stage = "processing"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
	StageUnknown    Stage = "unknown"
)

// Track 是回调中的一首生成结果。
type Track struct {
	AudioURL string
	Title    string
	Duration float64
}

// CallbackRecord 是从任意版本的回调载荷中提取出的统一结果。
type CallbackRecord struct {
	ExternalTaskID string
	Stage          Stage
	Tracks         []Track
	ErrorMessage   string
}

// PrimaryAudioURL 返回首个非空的结果地址。
func (r *CallbackRecord) PrimaryAudioURL() string {
	if r == nil {
		return ""
	}
	for _, track := range r.Tracks {
		if track.AudioURL != "" {
			return track.AudioURL
		}
	}
	return ""
}

// AudioURLs 返回全部结果地址。
func (r *CallbackRecord) AudioURLs() []string {
	if r == nil {
		return nil
	}
	urls := make([]string, 0, len(r.Tracks))
	for _, track := range r.Tracks {
		if track.AudioURL != "" {
			urls = append(urls, track.AudioURL)
		}
	}
	return urls
}

// ParseCallback 把供应商回调解析成统一结构。不同供应商版本会把同一批字段
// 放在不同层级：顶层、data 下一层、或 data.data 的歌曲数组。这里按固定顺序
// 尝试各提取策略，取第一个命中的。
func ParseCallback(payload []byte) (*CallbackRecord, error) {
	parsed := gjson.ParseBytes(payload)
	if !parsed.IsObject() {
		return nil, errors.New("callback payload is not a json object")
	}

	strategies := []func(gjson.Result) *CallbackRecord{
		extractNestedData,
		extractFlatData,
		extractTopLevel,
	}
	for _, strategy := range strategies {
		if record := strategy(parsed); record != nil {
			return record, nil
		}
	}

	// 结构完全陌生：能定位任务号就交给上层按失败处理，定位不到则报错
	record := &CallbackRecord{
		ExternalTaskID: findTaskID(parsed),
		Stage:          StageUnknown,
	}
	if record.ExternalTaskID == "" {
		return nil, errors.New("callback payload has no recognizable structure")
	}
	return record, nil
}

// extractNestedData 处理 {code, data: {callbackType, task_id, data: [songs]}} 形态。
func extractNestedData(parsed gjson.Result) *CallbackRecord {
	data := parsed.Get("data")
	if !data.IsObject() {
		return nil
	}
	songs := data.Get("data")
	callbackType := data.Get("callbackType")
	if !songs.IsArray() && !callbackType.Exists() {
		return nil
	}

	record := &CallbackRecord{
		ExternalTaskID: firstString(data, "task_id", "taskId"),
		Tracks:         collectTracks(songs),
		ErrorMessage:   firstString(data, "msg", "errorMessage", "error_message"),
	}
	record.Stage = resolveStage(callbackType.String(), parsed.Get("code"), record)
	return record
}

// extractFlatData 处理 {code, data: {task_id, audio_url, status}} 形态。
func extractFlatData(parsed gjson.Result) *CallbackRecord {
	data := parsed.Get("data")
	if !data.IsObject() {
		return nil
	}

	record := &CallbackRecord{
		ExternalTaskID: firstString(data, "task_id", "taskId"),
		ErrorMessage:   firstString(data, "msg", "errorMessage", "error_message"),
	}
	if track, ok := trackFrom(data); ok {
		record.Tracks = []Track{track}
	}
	status := firstString(data, "status", "callbackType", "state")
	if record.ExternalTaskID == "" && status == "" && len(record.Tracks) == 0 {
		return nil
	}
	record.Stage = resolveStage(status, parsed.Get("code"), record)
	return record
}

// extractTopLevel 处理字段全部平铺在顶层的形态。
func extractTopLevel(parsed gjson.Result) *CallbackRecord {
	record := &CallbackRecord{
		ExternalTaskID: firstString(parsed, "task_id", "taskId"),
		ErrorMessage:   firstString(parsed, "msg", "errorMessage", "error_message"),
	}
	if track, ok := trackFrom(parsed); ok {
		record.Tracks = []Track{track}
	}
	status := firstString(parsed, "status", "callbackType", "state")
	if record.ExternalTaskID == "" && status == "" && len(record.Tracks) == 0 {
		return nil
	}
	record.Stage = resolveStage(status, parsed.Get("code"), record)
	return record
}

func collectTracks(songs gjson.Result) []Track {
	if !songs.IsArray() {
		return nil
	}
	var tracks []Track
	songs.ForEach(func(_, song gjson.Result) bool {
		if track, ok := trackFrom(song); ok {
			tracks = append(tracks, track)
		}
		return true
	})
	return tracks
}

func trackFrom(node gjson.Result) (Track, bool) {
	url := firstString(node, "audio_url", "audioUrl", "stream_audio_url", "streamAudioUrl", "source_audio_url")
	if url == "" {
		return Track{}, false
	}
	return Track{
		AudioURL: url,
		Title:    firstString(node, "title", "song_title"),
		Duration: node.Get("duration").Float(),
	}, true
}

// resolveStage 归一化阶段：有结果地址即完成；显式错误码/错误状态判失败；
// 中间态保持 processing；其余情况判未知，由上层按失败兜底。
func resolveStage(status string, code gjson.Result, record *CallbackRecord) Stage {
	if record.PrimaryAudioURL() != "" {
		return StageComplete
	}

	switch strings.ToLower(strings.TrimSpace(status)) {
	case "complete", "completed", "success", "all_generated":
		// 声称完成却没有结果地址，按未知处理
		return StageUnknown
	case "text", "first", "processing", "pending", "generating", "audio_generating":
		return StageProcessing
	case "error", "failed", "fail", "create_task_failed", "generate_audio_failed", "sensitive_word_error":
		return StageFailed
	}

	if code.Exists() && code.Int() != 200 {
		return StageFailed
	}
	if record.ErrorMessage != "" {
		return StageFailed
	}
	return StageUnknown
}

func firstString(node gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := strings.TrimSpace(node.Get(path).String()); value != "" {
			return value
		}
	}
	return ""
}

func findTaskID(parsed gjson.Result) string {
	if id := firstString(parsed, "task_id", "taskId"); id != "" {
		return id
	}
	if data := parsed.Get("data"); data.IsObject() {
		return firstString(data, "task_id", "taskId")
	}
	return ""
}
