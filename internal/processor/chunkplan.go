package processor

import (
	"errors"
	"fmt"
)

// ErrPlanExceeded is returned when a chunk plan would need more than
// CHUNK_MAX chunks. Per the Open Question decision recorded in
// SPEC_FULL.md, the job is rejected rather than silently truncated -
// this is a CorruptInput-class failure the Processor reports as
// disposition failed/corrupt, with reason "plan_exceeded" in its
// skipped_corrupt event.
var ErrPlanExceeded = errors.New("processor: chunk plan exceeds chunk_max")

// ChunkSpec is one planned chunk: [Start, Start+Duration).
type ChunkSpec struct {
	Start    float64
	Duration float64
}

// PlanChunks derives the ordered chunk plan covering [0, total), per
// §3: each non-first chunk starts `overlap` seconds before the prior
// chunk's end, target length `chunkSeconds`. When total <= chunkSeconds
// or chunking is disabled, a single chunk covers the whole input. The
// plan is rejected with ErrPlanExceeded if it would need more than
// chunkMax chunks.
func PlanChunks(total, chunkSeconds, overlap float64, chunkMax int, chunkingEnabled bool) ([]ChunkSpec, error) {
	if total <= 0 {
		return nil, fmt.Errorf("processor: plan_chunks: total duration must be positive, got %.3f", total)
	}
	if !chunkingEnabled || total <= chunkSeconds {
		return []ChunkSpec{{Start: 0, Duration: total}}, nil
	}

	var plan []ChunkSpec
	start := 0.0
	for start < total {
		end := start + chunkSeconds
		if end > total {
			end = total
		}
		plan = append(plan, ChunkSpec{Start: start, Duration: end - start})
		if end >= total {
			break
		}
		if len(plan) >= chunkMax {
			return nil, fmt.Errorf("%w: needed more than %d chunks for %.1fs at %.1fs/chunk", ErrPlanExceeded, chunkMax, total, chunkSeconds)
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}

	if len(plan) > chunkMax {
		return nil, fmt.Errorf("%w: plan needed %d chunks, max is %d", ErrPlanExceeded, len(plan), chunkMax)
	}
	return plan, nil
}
