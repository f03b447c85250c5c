package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juninmd/prpilot/internal/conflict"
	"github.com/juninmd/prpilot/internal/provider"
	"github.com/juninmd/prpilot/internal/suggestion"
)

func runOnce(t *testing.T, h *harness, opts Options) *RunResult {
	t.Helper()
	result, err := h.engine(opts).Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Finished())
	return result
}

func requireOutcome(t *testing.T, result *RunResult, pr provider.PullRequest, want Category) Entry {
	t.Helper()
	cat, entry, ok := result.Find(pr.Repo, pr.Number)
	require.True(t, ok, "no outcome recorded for %s#%d", pr.Repo, pr.Number)
	require.Equal(t, want, cat, "entry: %+v", entry)
	return entry
}

func TestRun_UntrustedAuthorMakesNoMutations(t *testing.T) {
	for _, author := range []string{"stranger", "JUNINMD", "dependabot", "Copilot "} {
		t.Run(author, func(t *testing.T) {
			h := newHarness()
			pr := newPR("juninmd/api", 1, author, 2*time.Hour)
			h.dir.addPR(pr, provider.MergeableTrue)
			h.dir.reviewComments[prKey(pr.Repo, pr.Number)] = []provider.ReviewComment{
				{ID: 1, Author: "google-labs-jules", Path: "a.go", Line: 1, Body: "```suggestion\nx\n```"},
			}

			result := runOnce(t, h, Options{})

			entry := requireOutcome(t, result, pr, CategorySkipped)
			assert.Equal(t, ReasonUntrustedAuthor, entry.Reason)
			assert.Len(t, result.Skipped, 1)
			assert.Zero(t, h.dir.mutations())
			assert.False(t, h.dir.called("GetPullRequest"))
			assert.Empty(t, h.ws.clones)
			assert.Empty(t, h.notifier.merged)
		})
	}
}

func TestRun_AgeGate(t *testing.T) {
	tests := []struct {
		name   string
		age    time.Duration
		mature bool
		detail string
	}{
		{"brand new", 30 * time.Second, false, "0 minutes old"},
		{"just under", 10*time.Minute - time.Second, false, "9 minutes old"},
		{"exactly min age", 10 * time.Minute, true, ""},
		{"old", 3 * time.Hour, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			pr := newPR("juninmd/api", 5, "juninmd", tt.age)
			h.dir.addPR(pr, provider.MergeableTrue)

			result := runOnce(t, h, Options{})

			if tt.mature {
				requireOutcome(t, result, pr, CategoryMerged)
				return
			}
			entry := requireOutcome(t, result, pr, CategorySkipped)
			assert.Equal(t, ReasonTooYoung, entry.Reason)
			assert.Equal(t, tt.detail, entry.Detail)
			for _, m := range []string{"GetPullRequest", "GetCombinedStatus", "ListCheckRuns", "ListReviewComments"} {
				assert.False(t, h.dir.called(m), "%s called for immature PR", m)
			}
			assert.Empty(t, h.ws.clones)
		})
	}
}

func TestRun_CustomMinAge(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 5, "juninmd", 20*time.Minute)
	h.dir.addPR(pr, provider.MergeableTrue)

	result := runOnce(t, h, Options{MinAge: time.Hour})
	entry := requireOutcome(t, result, pr, CategorySkipped)
	assert.Equal(t, ReasonTooYoung, entry.Reason)
	assert.Equal(t, "20 minutes old", entry.Detail)
}

func TestRun_Draft(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 7, "juninmd", time.Hour)
	pr.Draft = true
	h.dir.addPR(pr, provider.MergeableTrue)

	result := runOnce(t, h, Options{})
	requireOutcome(t, result, pr, CategoryDrafts)
	assert.False(t, h.dir.called("GetPullRequest"))
	assert.Zero(t, h.dir.mutations())
}

func TestRun_UntrustedDraftIsSkippedAsUntrusted(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 8, "stranger", time.Hour)
	pr.Draft = true
	h.dir.addPR(pr, provider.MergeableTrue)

	result := runOnce(t, h, Options{})
	entry := requireOutcome(t, result, pr, CategorySkipped)
	assert.Equal(t, ReasonUntrustedAuthor, entry.Reason)
	assert.Empty(t, result.Drafts)
}

func TestRun_MergeabilityUnknown(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 9, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableUnknown)

	result := runOnce(t, h, Options{})
	entry := requireOutcome(t, result, pr, CategorySkipped)
	assert.Equal(t, ReasonMergeabilityUnknown, entry.Reason)
	assert.False(t, h.dir.called("GetCombinedStatus"))
	assert.Empty(t, h.ws.clones)
	assert.Zero(t, h.dir.mutations())
}

func TestRun_MergeOnlyWhenAllConditionsHold(t *testing.T) {
	for _, trusted := range []bool{true, false} {
		for _, mergeable := range []bool{true, false} {
			for _, green := range []bool{true, false} {
				name := fmt.Sprintf("trusted=%t/mergeable=%t/green=%t", trusted, mergeable, green)
				t.Run(name, func(t *testing.T) {
					h := newHarness()
					author := "juninmd"
					if !trusted {
						author = "stranger"
					}
					state := provider.MergeableFalse
					if mergeable {
						state = provider.MergeableTrue
					}
					pr := newPR("juninmd/api", 3, author, time.Hour)
					h.dir.addPR(pr, state)
					if green {
						h.dir.setPipeline(pr.HeadSHA, successStatus())
					} else {
						h.dir.setPipeline(pr.HeadSHA, emptyStatus(),
							provider.CheckRun{Name: "unit-tests", Status: "completed", Conclusion: "failure"})
					}

					result := runOnce(t, h, Options{})

					if trusted && mergeable && green {
						require.Len(t, h.dir.merges, 1)
						requireOutcome(t, result, pr, CategoryMerged)
					} else {
						assert.Empty(t, h.dir.merges)
						assert.Empty(t, result.Merged)
					}
				})
			}
		}
	}
}

func TestMerge_PreconditionsRechecked(t *testing.T) {
	h := newHarness()
	e := h.engine(Options{})
	pr := newPR("juninmd/api", 3, "juninmd", time.Hour)
	ctx := context.Background()

	for _, trust := range []Trust{Trusted, Untrusted} {
		for _, mergeable := range []provider.Mergeable{provider.MergeableTrue, provider.MergeableFalse} {
			for _, state := range []PipelineState{PipelineSuccess, PipelineFailure} {
				err := e.merge(ctx, pr, trust, mergeable, PipelineResult{State: state})
				if trust == Trusted && mergeable == provider.MergeableTrue && state == PipelineSuccess {
					assert.NoError(t, err)
				} else {
					assert.Error(t, err)
				}
			}
		}
	}
	assert.Len(t, h.dir.merges, 1)
}

func TestRun_MergeUsesEvaluatedHeadSHA(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 12, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)

	runOnce(t, h, Options{})
	require.Len(t, h.dir.merges, 1)
	assert.Equal(t, mergeCall{Repo: "juninmd/api", Number: 12, SHA: "sha-12"}, h.dir.merges[0])
}

func TestRun_MergeFailure(t *testing.T) {
	h := newHarness()
	h.dir.mergeErr = fmt.Errorf("merging: %w", provider.ErrConflict)
	pr := newPR("juninmd/api", 4, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)

	result := runOnce(t, h, Options{})
	entry := requireOutcome(t, result, pr, CategorySkipped)
	assert.Equal(t, ReasonMergeFailed, entry.Reason)
	assert.Contains(t, entry.Detail, "conflict")
	assert.Empty(t, h.notifier.merged)
}

func TestRun_MergeNotificationFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.notifier.mergeErr = errors.New("telegram down")
	pr := newPR("juninmd/api", 4, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)

	result := runOnce(t, h, Options{})
	requireOutcome(t, result, pr, CategoryMerged)
	assert.Len(t, h.notifier.summaries, 1)
}

func TestRun_PipelinePendingAndUnknown(t *testing.T) {
	t.Run("check in progress", func(t *testing.T) {
		h := newHarness()
		pr := newPR("juninmd/api", 2, "juninmd", time.Hour)
		h.dir.addPR(pr, provider.MergeableTrue)
		h.dir.setPipeline(pr.HeadSHA, emptyStatus(), provider.CheckRun{Name: "build", Status: "in_progress"})

		result := runOnce(t, h, Options{})
		entry := requireOutcome(t, result, pr, CategorySkipped)
		assert.Equal(t, ReasonPipelinePending, entry.Reason)
		assert.Contains(t, entry.Detail, "build")
		assert.Zero(t, h.dir.mutations())
	})

	t.Run("status fetch error", func(t *testing.T) {
		h := newHarness()
		h.dir.statusErr = fmt.Errorf("status: %w", provider.ErrTransient)
		pr := newPR("juninmd/api", 2, "juninmd", time.Hour)
		h.dir.addPR(pr, provider.MergeableTrue)

		result := runOnce(t, h, Options{})
		entry := requireOutcome(t, result, pr, CategorySkipped)
		assert.Equal(t, ReasonPipelinePending, entry.Reason)
		assert.Contains(t, entry.Detail, "transient")
		assert.Empty(t, h.dir.merges)
	})
}

func TestRun_PipelineFailureCommentFallsBackWithoutAI(t *testing.T) {
	h := newHarness()
	h.ai.commentErr = errors.New("quota exceeded")
	pr := newPR("juninmd/api", 30, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.setPipeline(pr.HeadSHA, &provider.CombinedStatus{
		State:      "failure",
		TotalCount: 2,
		Statuses: []provider.Status{
			{Context: "ci/lint", State: "success"},
			{Context: "ci/build", State: "failure", Description: "compile error", TargetURL: "https://ci/1"},
		},
	})

	runOnce(t, h, Options{})

	require.Len(t, h.dir.posted, 1)
	body := h.dir.posted[0].Body
	assert.Contains(t, body, "Pipeline Failure Detected")
	assert.Contains(t, body, PipelineFailureMarker)
	assert.Contains(t, body, "- ci/build: compile error (https://ci/1)")
	assert.NotContains(t, body, "ci/lint")
}

func TestRun_PipelineFailureCommentUsesAI(t *testing.T) {
	h := newHarness()
	h.ai.comment = "Hey! The unit tests are failing on this branch."
	pr := newPR("juninmd/api", 31, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.setPipeline(pr.HeadSHA, emptyStatus(),
		provider.CheckRun{Name: "unit-tests", Status: "completed", Conclusion: "failure", URL: "https://gh/run/9"})

	runOnce(t, h, Options{})

	require.Len(t, h.dir.posted, 1)
	body := h.dir.posted[0].Body
	assert.True(t, strings.HasPrefix(body, "Hey! The unit tests are failing"))
	assert.Contains(t, body, PipelineFailureMarker+"\n- unit-tests: failure (https://gh/run/9)")
}

func TestRun_PipelineFailureCommentIdempotent(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 32, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.setPipeline(pr.HeadSHA, emptyStatus(),
		provider.CheckRun{Name: "unit-tests", Status: "completed", Conclusion: "timed_out"})

	first := runOnce(t, h, Options{})
	second := runOnce(t, h, Options{})

	assert.Len(t, h.dir.posted, 1)
	assert.Equal(t, 1, h.ai.commentCalls, "AI is not consulted once the marker exists")
	requireOutcome(t, first, pr, CategoryPipelineFailures)
	requireOutcome(t, second, pr, CategoryPipelineFailures)
}

func TestRun_SuggestionsAppliedOnce(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 40, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	key := prKey(pr.Repo, pr.Number)
	h.dir.files["juninmd/api:main.go"] = &provider.File{Path: "main.go", SHA: "blob-0", Content: "one\ntwo\nthree\n"}
	h.dir.reviewComments[key] = []provider.ReviewComment{
		{ID: 101, Author: "google-labs-jules", Path: "main.go", Line: 2, Body: "Use caps:\n```suggestion\nTWO\n```"},
		{ID: 102, Author: "reviewer", Path: "main.go", Line: 3, Body: "```suggestion\nTHREE\n```"},
		{ID: 103, Author: "Jules da Google", Path: "main.go", Line: 1, Body: "nice work"},
	}

	first := runOnce(t, h, Options{})
	require.Len(t, h.dir.updates, 1)
	update := h.dir.updates[0]
	assert.Equal(t, "feature-40", update.Branch)
	assert.Equal(t, "blob-0", update.SHA)
	assert.Equal(t, "one\nTWO\nthree\n", update.Content)
	assert.Equal(t, map[int64]bool{101: true}, suggestion.AppliedIDs([]string{update.Message}))
	entry := requireOutcome(t, first, pr, CategorySkipped)
	assert.Equal(t, ReasonPipelinePending, entry.Reason)
	assert.Empty(t, h.dir.merges)

	second := runOnce(t, h, Options{})
	assert.Len(t, h.dir.updates, 1, "second run applies no new suggestions")
	requireOutcome(t, second, pr, CategoryMerged)
	require.Len(t, h.dir.merges, 1)
	assert.Equal(t, "feature-40-commit-1", h.dir.merges[0].SHA)
}

func TestRun_SuggestionsInOneFileUseOriginalLines(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 42, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	key := prKey(pr.Repo, pr.Number)
	h.dir.files["juninmd/api:main.go"] = &provider.File{Path: "main.go", SHA: "blob-0", Content: "one\ntwo\nthree\n"}
	h.dir.reviewComments[key] = []provider.ReviewComment{
		{ID: 301, Author: "google-labs-jules", CommitID: pr.HeadSHA, Path: "main.go", Line: 1, Body: "```suggestion\nONE-a\nONE-b\n```"},
		{ID: 302, Author: "google-labs-jules", CommitID: pr.HeadSHA, Path: "main.go", Line: 3, Body: "```suggestion\nTHREE\n```"},
		{ID: 303, Author: "google-labs-jules", CommitID: pr.HeadSHA, Path: "main.go", StartLine: 3, Line: 3, Body: "```suggestion\nthird\n```"},
	}

	runOnce(t, h, Options{})
	require.Len(t, h.dir.updates, 1, "one commit per file")
	update := h.dir.updates[0]
	assert.Equal(t, "ONE-a\nONE-b\ntwo\nTHREE\n", update.Content)
	assert.Equal(t, map[int64]bool{301: true, 302: true}, suggestion.AppliedIDs([]string{update.Message}))

	runOnce(t, h, Options{})
	assert.Len(t, h.dir.updates, 1, "suggestion anchored to the old head is not applied to the new content")
}

func TestRun_SuggestionCommitIsNotMergedBeforeCI(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 51, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.setPipeline(pr.HeadSHA, &provider.CombinedStatus{State: "success"},
		provider.CheckRun{Name: "unit-tests", Status: "completed", Conclusion: "failure"})
	h.dir.files["juninmd/api:main.go"] = &provider.File{Path: "main.go", SHA: "blob-0", Content: "one\n"}
	h.dir.reviewComments[prKey(pr.Repo, pr.Number)] = []provider.ReviewComment{
		{ID: 401, Author: "google-labs-jules", Path: "main.go", Line: 1, Body: "```suggestion\nONE\n```"},
	}

	result := runOnce(t, h, Options{})
	require.Len(t, h.dir.updates, 1)
	entry := requireOutcome(t, result, pr, CategorySkipped)
	assert.Equal(t, ReasonPipelinePending, entry.Reason)
	assert.Contains(t, entry.Detail, "awaiting CI")
	assert.Empty(t, h.dir.merges)
	assert.Empty(t, h.dir.posted)
	assert.False(t, h.dir.called("GetCombinedStatus"), "new head is not evaluated in the same run")
	assert.Empty(t, h.notifier.merged)
}

func TestRun_SuggestionFailureDoesNotBlock(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 41, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.reviewComments[prKey(pr.Repo, pr.Number)] = []provider.ReviewComment{
		{ID: 201, Author: "google-labs-jules", Path: "missing.go", Line: 2, Body: "```suggestion\nx\n```"},
	}

	result := runOnce(t, h, Options{})
	assert.Empty(t, h.dir.updates)
	requireOutcome(t, result, pr, CategoryMerged)
}

func TestRun_ConflictRoundTrip(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 23, "google-labs-jules", time.Hour)
	h.dir.addPR(pr, provider.MergeableFalse)

	before := "package main\n\nfunc value() string {\n"
	after := "}\n"
	checkout := &fakeCheckout{
		files: map[string]string{
			"value.go": before + "<<<<<<< HEAD\n\treturn \"a\"\n=======\n\treturn \"b\"\n>>>>>>> upstream/main\n" + after,
		},
		conflicted: []string{"value.go"},
	}
	h.ws.add(pr, checkout)
	h.ai.resolve = func(path string, b conflict.Block) (string, error) {
		assert.Equal(t, "value.go", path)
		assert.Equal(t, "\treturn \"a\"\n", b.Ours)
		assert.Equal(t, "\treturn \"b\"\n", b.Theirs)
		return "\treturn \"a+b\"\n\n", nil
	}

	result := runOnce(t, h, Options{})

	entry := requireOutcome(t, result, pr, CategoryConflictsResolved)
	assert.Equal(t, 1, entry.Files)
	assert.Equal(t, before+"\treturn \"a+b\"\n"+after, checkout.files["value.go"])
	assert.Equal(t, "https://github.com/juninmd/api.git@main", checkout.fetched)
	assert.Equal(t, "upstream/main", checkout.mergedRef)
	assert.Equal(t, []string{"value.go"}, checkout.staged)
	assert.Equal(t, []string{ConflictCommitMessage}, checkout.commits)
	assert.Equal(t, 1, checkout.pushes)
	assert.True(t, checkout.closed)
	assert.Empty(t, h.dir.posted)
	assert.Empty(t, h.dir.merges)
}

func TestRun_CleanMergeIsPushed(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 24, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableFalse)
	checkout := &fakeCheckout{files: map[string]string{}}
	h.ws.add(pr, checkout)

	result := runOnce(t, h, Options{})

	entry := requireOutcome(t, result, pr, CategoryConflictsResolved)
	assert.Zero(t, entry.Files)
	assert.Equal(t, 1, checkout.pushes)
	assert.Empty(t, checkout.commits)
	assert.Zero(t, h.ai.resolveCalls)
	assert.True(t, checkout.closed)
}

func TestRun_ConflictFailurePostsNoticeOnce(t *testing.T) {
	tests := map[string]func(h *harness, pr provider.PullRequest){
		"markers in reply": func(h *harness, pr provider.PullRequest) {
			h.ws.add(pr, &fakeCheckout{
				files:      map[string]string{"f.txt": "<<<<<<< HEAD\na\n=======\nb\n>>>>>>> upstream/main\n"},
				conflicted: []string{"f.txt"},
			})
			h.ai.resolve = func(string, conflict.Block) (string, error) {
				return "<<<<<<< HEAD\na\n", nil
			}
		},
		"binary file": func(h *harness, pr provider.PullRequest) {
			h.ws.add(pr, &fakeCheckout{
				files:      map[string]string{"logo.png": string([]byte{0x89, 'P', 'N', 'G', 0xff, 0xfe})},
				conflicted: []string{"logo.png"},
			})
		},
		"assistant error": func(h *harness, pr provider.PullRequest) {
			h.ws.add(pr, &fakeCheckout{
				files:      map[string]string{"f.txt": "<<<<<<< HEAD\na\n=======\nb\n>>>>>>> upstream/main\n"},
				conflicted: []string{"f.txt"},
			})
			h.ai.resolve = func(string, conflict.Block) (string, error) {
				return "", errors.New("model timeout")
			}
		},
		"push rejected": func(h *harness, pr provider.PullRequest) {
			h.ws.add(pr, &fakeCheckout{files: map[string]string{}, pushErr: errors.New("protected branch")})
		},
		"clone error": func(h *harness, _ provider.PullRequest) {
			h.ws.cloneErr = errors.New("repository not found")
		},
	}
	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			pr := newPR("juninmd/api", 25, "juninmd", time.Hour)
			h.dir.addPR(pr, provider.MergeableFalse)
			setup(h, pr)

			first := runOnce(t, h, Options{})
			entry := requireOutcome(t, first, pr, CategorySkipped)
			assert.Equal(t, ReasonConflictResolutionFailed, entry.Reason)
			require.Len(t, h.dir.posted, 1)
			assert.Contains(t, h.dir.posted[0].Body, ConflictFailureMarker)

			for _, c := range h.ws.checkouts {
				assert.True(t, c.closed, "clone removed on failure")
				assert.Empty(t, c.commits)
			}

			runOnce(t, h, Options{})
			assert.Len(t, h.dir.posted, 1, "notice is posted once")
		})
	}
}

func TestResolveConflicts_BinaryFile(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 26, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableFalse)
	checkout := &fakeCheckout{
		files:      map[string]string{"logo.png": string([]byte{0xff, 0xfe})},
		conflicted: []string{"logo.png"},
	}
	h.ws.add(pr, checkout)

	e := h.engine(Options{})
	_, err := e.ResolveConflicts(context.Background(), *h.dir.details[prKey(pr.Repo, pr.Number)])
	assert.ErrorIs(t, err, conflict.ErrBinary)
	assert.Zero(t, checkout.pushes)
}

func TestRun_ErrorsAreRecordedPerPR(t *testing.T) {
	h := newHarness()
	limited := newPR("juninmd/api", 50, "juninmd", time.Hour)
	panicky := newPR("juninmd/api", 51, "juninmd", time.Hour)
	healthy := newPR("juninmd/api", 52, "juninmd", time.Hour)
	for _, pr := range []provider.PullRequest{limited, panicky, healthy} {
		h.dir.addPR(pr, provider.MergeableTrue)
	}
	h.dir.getErr[prKey(limited.Repo, limited.Number)] = fmt.Errorf("get: %w", provider.ErrRateLimited)
	h.dir.panicOn[prKey(panicky.Repo, panicky.Number)] = true

	result := runOnce(t, h, Options{})

	entry := requireOutcome(t, result, limited, CategorySkipped)
	assert.Equal(t, ReasonError, entry.Reason)
	assert.True(t, strings.HasPrefix(entry.Detail, "rate_limited:"), entry.Detail)

	entry = requireOutcome(t, result, panicky, CategorySkipped)
	assert.Equal(t, ReasonError, entry.Reason)
	assert.Contains(t, entry.Detail, "panic")

	requireOutcome(t, result, healthy, CategoryMerged)
	assert.Equal(t, 3, result.TotalPRs)
}

func TestRun_RepositoryListingErrors(t *testing.T) {
	t.Run("one repository fails", func(t *testing.T) {
		h := newHarness()
		broken := newPR("juninmd/broken", 1, "juninmd", time.Hour)
		ok := newPR("juninmd/ok", 2, "juninmd", time.Hour)
		h.dir.addPR(broken, provider.MergeableTrue)
		h.dir.addPR(ok, provider.MergeableTrue)
		h.dir.listErr["juninmd/broken"] = provider.ErrTransient

		result := runOnce(t, h, Options{})
		assert.Equal(t, 1, result.TotalPRs)
		requireOutcome(t, result, ok, CategoryMerged)
	})

	t.Run("account listing fails", func(t *testing.T) {
		h := newHarness()
		h.dir.reposErr = provider.ErrRateLimited

		result, err := h.engine(Options{}).Run(context.Background())
		require.ErrorIs(t, err, provider.ErrRateLimited)
		assert.True(t, result.Finished())
		assert.Empty(t, h.notifier.summaries)
	})

	t.Run("archived repositories are ignored", func(t *testing.T) {
		h := newHarness()
		pr := newPR("juninmd/old", 1, "juninmd", time.Hour)
		h.dir.addPR(pr, provider.MergeableTrue)
		h.dir.repos[0].Archived = true

		result := runOnce(t, h, Options{})
		assert.Zero(t, result.TotalPRs)
		assert.False(t, h.dir.called("ListOpenPullRequests"))
	})
}

func TestRun_SearchScanMode(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/api", 60, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	search := &fakeSearchDirectory{fakeDirectory: h.dir, results: []provider.PullRequest{pr}}

	e := NewEngine(Deps{Directory: search, Notifier: h.notifier}, Options{
		Owner:    "juninmd",
		ScanMode: ScanSearch,
		Now:      func() time.Time { return testNow },
	})
	result, err := e.Run(context.Background())
	require.NoError(t, err)

	requireOutcome(t, result, pr, CategoryMerged)
	assert.True(t, h.dir.called("SearchOpenPullRequests"))
	assert.False(t, h.dir.called("ListRepositories"))
}

func TestRun_SearchScanModeUnsupported(t *testing.T) {
	h := newHarness()
	_, err := h.engine(Options{ScanMode: ScanSearch}).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_SummarySentOnce(t *testing.T) {
	h := newHarness()
	h.dir.addPR(newPR("juninmd/api", 1, "juninmd", time.Hour), provider.MergeableTrue)
	h.dir.addPR(newPR("juninmd/api", 2, "stranger", time.Hour), provider.MergeableTrue)

	result := runOnce(t, h, Options{})
	require.Len(t, h.notifier.summaries, 1)
	assert.Same(t, result, h.notifier.summaries[0])
	assert.Equal(t, map[Category]int{
		CategoryMerged:            1,
		CategoryConflictsResolved: 0,
		CategoryPipelineFailures:  0,
		CategoryDrafts:            0,
		CategorySkipped:           1,
	}, result.Counts())
}

func TestScenario_PR12_MergedWithNotification(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/site", 12, "juninmd", time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.setPipeline(pr.HeadSHA, successStatus(),
		provider.CheckRun{Name: "build", Status: "completed", Conclusion: "success"})

	result := runOnce(t, h, Options{})

	assert.Len(t, result.Merged, 1)
	requireOutcome(t, result, pr, CategoryMerged)
	require.Len(t, h.notifier.merged, 1)
	assert.Equal(t, 12, h.notifier.merged[0].Number)
	assert.Empty(t, h.dir.posted)
}

func TestScenario_PR67_PipelineFailureCommentedOnce(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/site", 67, "dependabot[bot]", 2*time.Hour)
	h.dir.addPR(pr, provider.MergeableTrue)
	h.dir.setPipeline(pr.HeadSHA, emptyStatus(),
		provider.CheckRun{Name: "unit-tests", Status: "completed", Conclusion: "failure"})

	first := runOnce(t, h, Options{})
	assert.Len(t, first.PipelineFailures, 1)
	require.Len(t, h.dir.posted, 1)
	assert.Contains(t, h.dir.posted[0].Body, "unit-tests")

	second := runOnce(t, h, Options{})
	assert.Len(t, second.PipelineFailures, 1)
	assert.Len(t, h.dir.posted, 1)
	assert.Empty(t, h.dir.merges)
}

func TestScenario_PR23_ConflictResolvedAndPushed(t *testing.T) {
	h := newHarness()
	pr := newPR("juninmd/site", 23, "google-labs-jules", time.Hour)
	h.dir.addPR(pr, provider.MergeableFalse)
	checkout := &fakeCheckout{
		files:      map[string]string{"README.md": "# Site\n<<<<<<< HEAD\na\n=======\nb\n>>>>>>> upstream/main\nfooter\n"},
		conflicted: []string{"README.md"},
	}
	h.ws.add(pr, checkout)

	result := runOnce(t, h, Options{})

	assert.Equal(t, 1, h.ai.resolveCalls)
	assert.Len(t, checkout.commits, 1)
	assert.Equal(t, 1, checkout.pushes)
	assert.Equal(t, "# Site\na+b\nfooter\n", checkout.files["README.md"])
	requireOutcome(t, result, pr, CategoryConflictsResolved)
}
