package protocol

import (
	"encoding/json"
	"testing"
)

func TestFeedbackMessageRoundTrip(t *testing.T) {
	original := FeedbackMessage{
		ID:     "42",
		Status: ClosedSuccess(),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded FeedbackMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestControlResponseUnmarshal(t *testing.T) {
	body := []byte(`{
		"config": {"polling": {"sleep": "00:05:00"}},
		"_links": {
			"cancelAction": {"href": "https://example.test/DEFAULT/controller/v1/x-dev01/cancelAction/7"}
		}
	}`)

	var res ControlResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if res.Config.Polling.Sleep != "00:05:00" {
		t.Errorf("sleep = %q, want 00:05:00", res.Config.Polling.Sleep)
	}
	if res.Links.CancelAction.HREF == "" {
		t.Error("expected cancelAction href to be populated")
	}
	if res.Links.DeploymentBase.HREF != "" {
		t.Error("expected deploymentBase href to be empty")
	}
}

func TestDeploymentResponseUnmarshal(t *testing.T) {
	body := []byte(`{
		"id": "42",
		"deployment": {
			"download": "forced",
			"update": "forced",
			"chunks": [{
				"part": "bApp",
				"version": "1.0.0",
				"name": "app",
				"artifacts": [{
					"filename": "app.bin",
					"hashes": {"sha1": "a", "md5": "b", "sha256": "c"},
					"size": 1024,
					"_links": {"download-http": {"href": "https://example.test/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin"}}
				}]
			}]
		}
	}`)

	var res DeploymentResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if res.ID != "42" {
		t.Errorf("id = %q, want 42", res.ID)
	}
	if len(res.Deployment.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(res.Deployment.Chunks))
	}
	chunk := res.Deployment.Chunks[0]
	if chunk.Part != "bApp" {
		t.Errorf("part = %q, want bApp", chunk.Part)
	}
	if len(chunk.Artifacts) != 1 || chunk.Artifacts[0].Size != 1024 {
		t.Fatalf("unexpected artifacts: %+v", chunk.Artifacts)
	}
}
