package scrape

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names a relationship list that can be scraped.
type Kind string

const (
	// KindFollowers lists the accounts following a user.
	KindFollowers Kind = "followers"
	// KindFollowing lists the accounts a user follows.
	KindFollowing Kind = "following"
	// KindLikers lists the accounts that liked a tweet.
	KindLikers Kind = "likers"
	// KindRetweeters lists the accounts that retweeted a tweet.
	KindRetweeters Kind = "retweeters"
)

const (
	variableUserID          = "userId"
	variableTweetID         = "tweetId"
	userListPageSize        = 100
	tweetEngagementPageSize = 20
	errMessageUnknownKind   = "unknown scrape kind"

	followersFeatures = `{"dont_mention_me_view_api_enabled":true,"interactive_text_enabled":true,"responsive_web_uc_gql_enabled":false,"vibe_tweet_context_enabled":false,"responsive_web_edit_tweet_api_enabled":false,"standardized_nudges_for_misinfo_nudges_enabled":false}`
	timelineFeatures  = `{"rweb_lists_timeline_redesign_enabled":false,"blue_business_profile_image_shape_enabled":true,"responsive_web_graphql_exclude_directive_enabled":true,"verified_phone_label_enabled":false,"creator_subscriptions_tweet_preview_api_enabled":false,"responsive_web_graphql_timeline_navigation_enabled":true,"responsive_web_graphql_skip_user_profile_image_extensions_enabled":false,"tweetypie_unmention_optimization_enabled":true,"vibe_api_enabled":true,"responsive_web_edit_tweet_api_enabled":true,"graphql_is_translatable_rweb_tweet_is_translatable_enabled":true,"view_counts_everywhere_api_enabled":true,"longform_notetweets_consumption_enabled":true,"tweet_awards_web_tipping_enabled":false,"freedom_of_speech_not_reach_fetch_enabled":true,"standardized_nudges_misinfo":true,"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled":false,"interactive_text_enabled":true,"responsive_web_text_conversations_enabled":false,"longform_notetweets_rich_text_read_enabled":true,"longform_notetweets_inline_media_enabled":false,"responsive_web_enhance_cards_enabled":false}`
)

// ErrUnknownKind indicates a scrape kind outside the supported set.
var ErrUnknownKind = errors.New(errMessageUnknownKind)

// Target describes how one relationship list is queried and where its output lands.
type Target struct {
	Kind            Kind
	QueryID         string
	Operation       string
	TargetVariable  string
	PageSize        int
	ResolvesUser    bool
	Features        string
	OutputDirectory string
}

var targets = map[Kind]Target{
	KindFollowers: {
		Kind:            KindFollowers,
		QueryID:         "31HLi-uxjvX3CnJ4TYAetg",
		Operation:       "Followers",
		TargetVariable:  variableUserID,
		PageSize:        userListPageSize,
		ResolvesUser:    true,
		Features:        followersFeatures,
		OutputDirectory: "followers",
	},
	KindFollowing: {
		Kind:            KindFollowing,
		QueryID:         "HExDl7BP0vveZdICk4d2ZA",
		Operation:       "Following",
		TargetVariable:  variableUserID,
		PageSize:        userListPageSize,
		ResolvesUser:    true,
		Features:        timelineFeatures,
		OutputDirectory: "followings",
	},
	KindLikers: {
		Kind:            KindLikers,
		QueryID:         "chZuj2D-EyT1GapXpQrUnQ",
		Operation:       "Favoriters",
		TargetVariable:  variableTweetID,
		PageSize:        tweetEngagementPageSize,
		Features:        timelineFeatures,
		OutputDirectory: "likers",
	},
	KindRetweeters: {
		Kind:            KindRetweeters,
		QueryID:         "g2ePSCh-xWUiS_vH03Mn7A",
		Operation:       "Retweeters",
		TargetVariable:  variableTweetID,
		PageSize:        tweetEngagementPageSize,
		Features:        timelineFeatures,
		OutputDirectory: "retweeters",
	},
}

// LookupTarget returns the definition registered for kind.
func LookupTarget(kind string) (Target, error) {
	target, ok := targets[Kind(strings.ToLower(strings.TrimSpace(kind)))]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return target, nil
}

// Kinds lists the supported scrape kinds in a stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(targets))
	for kind := range targets {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(left, right int) bool { return kinds[left] < kinds[right] })
	return kinds
}
