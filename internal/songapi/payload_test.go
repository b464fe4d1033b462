package songapi

import (
	"testing"
)

func TestParseCallbackShapes(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantTaskID string
		wantStage  Stage
		wantURL    string
		wantTracks int
	}{
		{
			name: "嵌套歌曲数组，完成",
			payload: `{"code":200,"msg":"ok","data":{"callbackType":"complete","task_id":"task-abc123","data":[
				{"audio_url":"https://cdn.example.com/a.mp3","title":"Sunrise","duration":182.4},
				{"audio_url":"https://cdn.example.com/b.mp3","title":"Sunrise (alt)","duration":190.1}
			]}}`,
			wantTaskID: "task-abc123",
			wantStage:  StageComplete,
			wantURL:    "https://cdn.example.com/a.mp3",
			wantTracks: 2,
		},
		{
			name:       "嵌套数组，中间态 text",
			payload:    `{"code":200,"data":{"callbackType":"text","task_id":"task-abc123","data":[]}}`,
			wantTaskID: "task-abc123",
			wantStage:  StageProcessing,
		},
		{
			name:       "data 平铺，stream_audio_url 字段",
			payload:    `{"code":200,"data":{"taskId":"task-def456","status":"complete","stream_audio_url":"https://cdn.example.com/s.mp3","title":"Nightfall"}}`,
			wantTaskID: "task-def456",
			wantStage:  StageComplete,
			wantURL:    "https://cdn.example.com/s.mp3",
			wantTracks: 1,
		},
		{
			name:       "顶层平铺，audio_url 字段",
			payload:    `{"task_id":"task-ghi789","status":"completed","audio_url":"https://cdn.example.com/t.mp3","duration":95}`,
			wantTaskID: "task-ghi789",
			wantStage:  StageComplete,
			wantURL:    "https://cdn.example.com/t.mp3",
			wantTracks: 1,
		},
		{
			name:       "显式失败状态",
			payload:    `{"code":200,"data":{"callbackType":"error","task_id":"task-err1","msg":"sensitive words detected"}}`,
			wantTaskID: "task-err1",
			wantStage:  StageFailed,
		},
		{
			name:       "非 200 业务码判失败",
			payload:    `{"code":500,"msg":"internal error","data":{"task_id":"task-err2"}}`,
			wantTaskID: "task-err2",
			wantStage:  StageFailed,
		},
		{
			name:       "声称完成但没有结果地址",
			payload:    `{"code":200,"data":{"callbackType":"complete","task_id":"task-empty","data":[]}}`,
			wantTaskID: "task-empty",
			wantStage:  StageUnknown,
		},
		{
			name:       "中间态 first",
			payload:    `{"code":200,"data":{"callbackType":"first","task_id":"task-abc123","data":[{"audio_url":""}]}}`,
			wantTaskID: "task-abc123",
			wantStage:  StageProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseCallback([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if record.ExternalTaskID != tt.wantTaskID {
				t.Errorf("task id: expected %q, got %q", tt.wantTaskID, record.ExternalTaskID)
			}
			if record.Stage != tt.wantStage {
				t.Errorf("stage: expected %q, got %q", tt.wantStage, record.Stage)
			}
			if got := record.PrimaryAudioURL(); got != tt.wantURL {
				t.Errorf("audio url: expected %q, got %q", tt.wantURL, got)
			}
			if len(record.Tracks) != tt.wantTracks {
				t.Errorf("tracks: expected %d, got %d", tt.wantTracks, len(record.Tracks))
			}
		})
	}
}

func TestParseCallbackUnrecognizable(t *testing.T) {
	if _, err := ParseCallback([]byte(`"just a string"`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
	if _, err := ParseCallback([]byte(`{"something":"else"}`)); err == nil {
		t.Fatal("expected error for payload with no task id and no status")
	}
}

func TestParseCallbackUnknownStructureWithTaskID(t *testing.T) {
	record, err := ParseCallback([]byte(`{"task_id":"task-xyz","weird_field":42}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Stage != StageUnknown {
		t.Fatalf("expected unknown stage, got %q", record.Stage)
	}
	if record.ExternalTaskID != "task-xyz" {
		t.Fatalf("expected task id preserved, got %q", record.ExternalTaskID)
	}
}
