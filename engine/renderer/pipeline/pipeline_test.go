package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-prt/engine/renderer/shader"
)

const testKernel = `//@oxy:group 0 0 storage_read_write values array<f32>

@compute @workgroup_size(32)
fn double_values(@builtin(global_invocation_id) gid: vec3<u32>) {
    values[gid.x] = values[gid.x] * 2.0;
}
`

func TestNewPipeline(t *testing.T) {
	s, err := shader.NewComputeShader("double", testKernel, nil)
	if err != nil {
		t.Fatalf("Failed to parse kernel: %v", err)
	}

	p := NewPipeline("Double Values", WithComputeShader(s))
	if p.PipelineKey() != "Double Values" {
		t.Errorf("Expected key %q, got %q", "Double Values", p.PipelineKey())
	}
	if p.Shader() != s {
		t.Error("Expected the compute kernel to be stored")
	}
	if p.Registered() || p.Pipeline() != nil {
		t.Error("Expected an unregistered pipeline")
	}
	for _, group := range []int{-1, 0, 3} {
		if p.BindGroupLayout(group) != nil {
			t.Errorf("Expected no layout for group %d before registration", group)
		}
	}

	// Releasing an unregistered pipeline is a no-op.
	p.Release()
	p.Release()
	if p.Registered() {
		t.Error("Expected the pipeline to stay unregistered")
	}
}

func TestNewPipeline_NoShader(t *testing.T) {
	p := NewPipeline("empty")
	if p.Shader() != nil {
		t.Error("Expected no compute kernel")
	}
}
