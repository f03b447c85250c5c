package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/juninmd/prpilot/internal/provider"
)

// searchPageSize is the number of search results requested per GraphQL page.
const searchPageSize = 50

type prNode struct {
	Number      int
	Title       string
	URL         string `graphql:"url"`
	IsDraft     bool
	CreatedAt   githubv4.DateTime
	Mergeable   githubv4.MergeableState
	HeadRefName string
	HeadRefOid  string
	BaseRefName string
	Author      struct {
		Login string
	}
	Repository struct {
		NameWithOwner string
		URL           string `graphql:"url"`
	}
	HeadRepository struct {
		NameWithOwner string
		URL           string `graphql:"url"`
	}
}

// SearchOpenPullRequests finds every open PR in repositories owned by owner
// with a single paginated GraphQL search, mirroring `is:pr is:open user:<owner>`.
// Results include the mergeable tri-state as computed at query time.
func (b *Backend) SearchOpenPullRequests(ctx context.Context, owner string) ([]provider.PullRequest, error) {
	gql := b.getGraphQLClient(ctx)

	var q struct {
		Search struct {
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
			Nodes []struct {
				PullRequest prNode `graphql:"... on PullRequest"`
			}
		} `graphql:"search(query: $query, type: ISSUE, first: $first, after: $cursor)"`
	}

	vars := map[string]any{
		"query":  githubv4.String(fmt.Sprintf("is:pr is:open user:%s", owner)),
		"first":  githubv4.Int(searchPageSize),
		"cursor": (*githubv4.String)(nil),
	}

	var prs []provider.PullRequest
	for {
		if err := gql.Query(ctx, &q, vars); err != nil {
			return nil, fmt.Errorf("searching open pull requests: %w: %w", provider.ErrTransient, err)
		}
		for _, n := range q.Search.Nodes {
			if n.PullRequest.Number == 0 {
				continue
			}
			prs = append(prs, mapNode(n.PullRequest))
		}
		if !q.Search.PageInfo.HasNextPage {
			break
		}
		vars["cursor"] = githubv4.NewString(q.Search.PageInfo.EndCursor)
	}
	return prs, nil
}

func mapNode(n prNode) provider.PullRequest {
	pr := provider.PullRequest{
		Repo:       n.Repository.NameWithOwner,
		Number:     n.Number,
		Title:      n.Title,
		Author:     n.Author.Login,
		URL:        n.URL,
		CreatedAt:  n.CreatedAt.Time,
		Draft:      n.IsDraft,
		HeadBranch: n.HeadRefName,
		HeadSHA:    n.HeadRefOid,
		HeadRepo:   n.HeadRepository.NameWithOwner,
		BaseBranch: n.BaseRefName,
	}
	if n.Repository.URL != "" {
		pr.BaseCloneURL = n.Repository.URL + ".git"
	}
	if n.HeadRepository.URL != "" {
		pr.HeadCloneURL = n.HeadRepository.URL + ".git"
	}
	switch n.Mergeable {
	case githubv4.MergeableStateMergeable:
		pr.Mergeable = provider.MergeableTrue
	case githubv4.MergeableStateConflicting:
		pr.Mergeable = provider.MergeableFalse
	default:
		pr.Mergeable = provider.MergeableUnknown
	}
	return pr
}
