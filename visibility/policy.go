// Package visibility decides who may see a moderated message: shadow-banned
// authors see their own posts while everyone else does not, and content
// under review follows a per content type policy.
package visibility

import (
	"sync"

	modguard "github.com/heibot/modguard"
)

// Policy defines how content is displayed while it is reviewed.
type Policy string

const (
	// PolicyHiddenDuringReview hides flagged content from everyone but
	// moderators until it is approved.
	PolicyHiddenDuringReview Policy = "hidden_during_review"

	// PolicyCreatorOnlyDuringReview shows flagged content to its author
	// only until it is approved.
	PolicyCreatorOnlyDuringReview Policy = "creator_only_during_review"

	// PolicyVisibleDuringReview keeps flagged content public until a
	// moderator rejects it.
	PolicyVisibleDuringReview Policy = "visible_during_review"

	// PolicyAlwaysVisible always shows content, replaced if rejected.
	PolicyAlwaysVisible Policy = "always_visible"
)

// ViewerRole represents who is viewing the content.
type ViewerRole string

const (
	ViewerCreator ViewerRole = "creator" // Author of the content
	ViewerPublic  ViewerRole = "public"  // Anyone else
	ViewerAdmin   ViewerRole = "admin"   // Moderators and administrators
)

var (
	policyMu       sync.RWMutex
	policyRegistry = map[string]Policy{
		"message": PolicyCreatorOnlyDuringReview,
		"comment": PolicyCreatorOnlyDuringReview,
		"post":    PolicyVisibleDuringReview,
		"profile": PolicyHiddenDuringReview,
	}
)

// GetPolicy returns the visibility policy for a content type.
func GetPolicy(contentType string) Policy {
	policyMu.RLock()
	defer policyMu.RUnlock()
	if policy, ok := policyRegistry[contentType]; ok {
		return policy
	}
	return PolicyHiddenDuringReview // Default to strictest
}

// SetPolicy sets the visibility policy for a content type.
func SetPolicy(contentType string, policy Policy) {
	policyMu.Lock()
	defer policyMu.Unlock()
	policyRegistry[contentType] = policy
}

// State is the moderation state of one message.
type State struct {
	// Shadowed is set when the author was shadow-banned at post time.
	Shadowed bool

	// Review is the status of the message's queue item, empty when it was
	// never flagged.
	Review modguard.QueueStatus
}

// StateOf derives the state from an evaluation and the optional queue item
// created for it.
func StateOf(shadowed bool, item *modguard.QueueItem) State {
	s := State{Shadowed: shadowed}
	if item != nil {
		s.Review = item.Status
	}
	return s
}

// CanView determines if a viewer can see the message.
func CanView(policy Policy, state State, viewer ViewerRole) bool {
	// Admins can always view
	if viewer == ViewerAdmin {
		return true
	}

	if state.Shadowed {
		return viewer == ViewerCreator
	}

	switch state.Review {
	case "", modguard.QueueApproved:
		return true
	case modguard.QueueRejected:
		return policy == PolicyAlwaysVisible
	}

	switch policy {
	case PolicyCreatorOnlyDuringReview:
		return viewer == ViewerCreator
	case PolicyVisibleDuringReview, PolicyAlwaysVisible:
		return true
	default:
		return false
	}
}

// RoleOf returns the role of viewerID for content by authorID.
func RoleOf(viewerID, authorID string, admin bool) ViewerRole {
	switch {
	case admin:
		return ViewerAdmin
	case viewerID != "" && viewerID == authorID:
		return ViewerCreator
	default:
		return ViewerPublic
	}
}
