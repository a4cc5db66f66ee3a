package xclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"
)

const (
	usersLookupPath          = "/i/api/1.1/users/lookup.json"
	friendshipsCreatePath    = "/1.1/friendships/create.json"
	favoritesCreatePath      = "/1.1/favorites/create.json"
	retweetPathFormat        = "/1.1/statuses/retweet/%s.json"
	directMessagePath        = "/1.1/direct_messages/events/new.json"
	updateProfilePath        = "/1.1/account/update_profile.json"
	updateProfileImagePath   = "/1.1/account/update_profile_image.json"
	updateProfileBannerPath  = "/1.1/account/update_profile_banner.json"
	verifyCredentialsPath    = "/1.1/account/verify_credentials.json"
	graphQLPathFormat        = "/i/api/graphql/%s/%s"
	createTweetQueryID       = "7TKRKCPuAGsmYde0CudbVg"
	createTweetOperation     = "CreateTweet"
	messageCreateEventType   = "message_create"
	queryScreenName          = "screen_name"
	queryTweetID             = "id"
	queryVariables           = "variables"
	queryFeatures            = "features"
	formUserID               = "user_id"
	formSkipStatus           = "skip_status"
	formImage                = "image"
	formBanner               = "banner"
	formName                 = "name"
	formDescription          = "description"
	formLocation             = "location"
	formBirthdateDay         = "birthdate_day"
	formBirthdateMonth       = "birthdate_month"
	formBirthdateYear        = "birthdate_year"
	formEnabled              = "1"
	logMessageFollowed       = "followed account"
	logMessageLiked          = "liked tweet"
	logMessageRetweeted      = "retweeted tweet"
	logMessageQuoted         = "posted quote"
	logMessageReplied        = "posted reply"
	logMessageMessageSent    = "direct message sent"
	logMessageProfileUpdated = "profile updated"
	logMessageImageUpdated   = "profile image updated"
	logMessageBannerUpdated  = "profile banner updated"
	logFieldUserID           = "user_id"
	logFieldTweetID          = "tweet_id"
	logFieldTweetURL         = "tweet_url"
)

// createTweetFeatures mirrors the feature switches the web client sends with CreateTweet.
var createTweetFeatures = map[string]bool{
	"tweetypie_unmention_optimization_enabled":                                true,
	"vibe_api_enabled":                                                        true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"interactive_text_enabled":                                                true,
	"responsive_web_text_conversations_enabled":                               false,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"blue_business_profile_image_shape_enabled":                               true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"freedom_of_speech_not_reach_fetch_enabled":                               false,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"responsive_web_enhance_cards_enabled":                                    false,
}

// Identity describes the account behind a verified session.
type Identity struct {
	ID         string
	ScreenName string
	Name       string
}

// ProfileUpdate lists the profile fields to change; empty fields are left untouched.
type ProfileUpdate struct {
	Name           string
	Description    string
	Location       string
	BirthdateDay   string
	BirthdateMonth string
	BirthdateYear  string
}

// TimelineRequest describes a GraphQL timeline query.
type TimelineRequest struct {
	QueryID   string
	Operation string
	Variables string
	Features  string
}

type createTweetPayload struct {
	Variables createTweetVariables `json:"variables"`
	Features  map[string]bool      `json:"features"`
	QueryID   string               `json:"queryId"`
}

type createTweetVariables struct {
	TweetText             string            `json:"tweet_text"`
	AttachmentURL         string            `json:"attachment_url,omitempty"`
	Reply                 *createTweetReply `json:"reply,omitempty"`
	DarkRequest           bool              `json:"dark_request"`
	Media                 createTweetMedia  `json:"media"`
	SemanticAnnotationIDs []string          `json:"semantic_annotation_ids"`
}

type createTweetReply struct {
	InReplyToTweetID    string   `json:"in_reply_to_tweet_id"`
	ExcludeReplyUserIDs []string `json:"exclude_reply_user_ids"`
}

type createTweetMedia struct {
	PossiblySensitive bool `json:"possibly_sensitive"`
}

type directMessagePayload struct {
	Event directMessageEvent `json:"event"`
}

type directMessageEvent struct {
	Type          string               `json:"type"`
	MessageCreate directMessageContent `json:"message_create"`
}

type directMessageContent struct {
	Target      directMessageTarget `json:"target"`
	MessageData directMessageData   `json:"message_data"`
}

type directMessageTarget struct {
	RecipientID string `json:"recipient_id"`
}

type directMessageData struct {
	Text string `json:"text"`
}

// LookupUserID resolves a screen name to its numeric account identifier.
func (client *Client) LookupUserID(ctx context.Context, screenName string) (string, error) {
	normalized := normalizeScreenName(screenName)
	if normalized == "" {
		return "", errEmptyScreenName
	}
	endpoint := client.webURL(usersLookupPath, url.Values{queryScreenName: {normalized}})
	body, err := client.do(ctx, apiRequest{method: http.MethodGet, endpoint: endpoint, contentType: contentTypeJSON})
	if err != nil {
		return "", err
	}
	userID, lookupErr := jsonparser.GetString(body, "[0]", "id_str")
	if lookupErr != nil || strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, normalized)
	}
	return userID, nil
}

// Follow follows the account with the given numeric identifier.
func (client *Client) Follow(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errEmptyUserID
	}
	form := url.Values{formUserID: {userID}, formSkipStatus: {formEnabled}}
	if err := client.postForm(ctx, client.apiURL(friendshipsCreatePath, nil), form); err != nil {
		return err
	}
	client.logger.Info(logMessageFollowed, zap.String(logFieldUserID, userID))
	return nil
}

// Like marks a tweet as liked.
func (client *Client) Like(ctx context.Context, tweetID string) error {
	if strings.TrimSpace(tweetID) == "" {
		return errEmptyTweetID
	}
	endpoint := client.apiURL(favoritesCreatePath, url.Values{queryTweetID: {tweetID}})
	if _, err := client.do(ctx, apiRequest{method: http.MethodPost, endpoint: endpoint}); err != nil {
		return err
	}
	client.logger.Info(logMessageLiked, zap.String(logFieldTweetID, tweetID))
	return nil
}

// Retweet retweets a tweet without commentary.
func (client *Client) Retweet(ctx context.Context, tweetID string) error {
	if strings.TrimSpace(tweetID) == "" {
		return errEmptyTweetID
	}
	endpoint := client.apiURL(fmt.Sprintf(retweetPathFormat, url.PathEscape(tweetID)), nil)
	if _, err := client.do(ctx, apiRequest{method: http.MethodPost, endpoint: endpoint}); err != nil {
		return err
	}
	client.logger.Info(logMessageRetweeted, zap.String(logFieldTweetID, tweetID))
	return nil
}

// Quote posts text with the referenced tweet attached.
func (client *Client) Quote(ctx context.Context, text string, tweetURL string) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyText
	}
	if strings.TrimSpace(tweetURL) == "" {
		return errEmptyTweetID
	}
	variables := newCreateTweetVariables(text)
	variables.AttachmentURL = tweetURL
	if err := client.createTweet(ctx, variables); err != nil {
		return err
	}
	client.logger.Info(logMessageQuoted, zap.String(logFieldTweetURL, tweetURL))
	return nil
}

// Reply posts text in reply to a tweet.
func (client *Client) Reply(ctx context.Context, text string, tweetID string) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyText
	}
	if strings.TrimSpace(tweetID) == "" {
		return errEmptyTweetID
	}
	variables := newCreateTweetVariables(text)
	variables.Reply = &createTweetReply{InReplyToTweetID: tweetID, ExcludeReplyUserIDs: []string{}}
	if err := client.createTweet(ctx, variables); err != nil {
		return err
	}
	client.logger.Info(logMessageReplied, zap.String(logFieldTweetID, tweetID))
	return nil
}

// SendDirectMessage sends a direct message to the account with the given numeric identifier.
func (client *Client) SendDirectMessage(ctx context.Context, userID string, text string) error {
	if strings.TrimSpace(userID) == "" {
		return errEmptyUserID
	}
	if strings.TrimSpace(text) == "" {
		return errEmptyText
	}
	payload := directMessagePayload{Event: directMessageEvent{
		Type: messageCreateEventType,
		MessageCreate: directMessageContent{
			Target:      directMessageTarget{RecipientID: userID},
			MessageData: directMessageData{Text: text},
		},
	}}
	body, err := client.postJSON(ctx, client.apiURL(directMessagePath, nil), payload)
	if err != nil {
		return err
	}
	eventType, _ := jsonparser.GetString(body, "event", "type")
	if eventType != messageCreateEventType {
		return ErrUnexpectedEventType
	}
	client.logger.Info(logMessageMessageSent, zap.String(logFieldUserID, userID))
	return nil
}

// UpdateProfile changes the non-empty fields of the account profile.
func (client *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	form := update.formValues()
	if len(form) == 0 {
		return ErrEmptyProfileUpdate
	}
	if err := client.postForm(ctx, client.apiURL(updateProfilePath, nil), form); err != nil {
		return err
	}
	client.logger.Info(logMessageProfileUpdated)
	return nil
}

// UpdateProfileImage replaces the profile picture with the supplied image bytes.
func (client *Client) UpdateProfileImage(ctx context.Context, image []byte) error {
	if err := client.uploadImage(ctx, updateProfileImagePath, formImage, image); err != nil {
		return err
	}
	client.logger.Info(logMessageImageUpdated)
	return nil
}

// UpdateProfileBanner replaces the profile banner with the supplied image bytes.
func (client *Client) UpdateProfileBanner(ctx context.Context, image []byte) error {
	if err := client.uploadImage(ctx, updateProfileBannerPath, formBanner, image); err != nil {
		return err
	}
	client.logger.Info(logMessageBannerUpdated)
	return nil
}

// VerifyCredentials confirms the session tokens and returns the account identity.
func (client *Client) VerifyCredentials(ctx context.Context) (Identity, error) {
	body, err := client.do(ctx, apiRequest{method: http.MethodGet, endpoint: client.apiURL(verifyCredentialsPath, nil)})
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{}
	identity.ID, _ = jsonparser.GetString(body, "id_str")
	identity.ScreenName, _ = jsonparser.GetString(body, "screen_name")
	identity.Name, _ = jsonparser.GetString(body, "name")
	if identity.ID == "" {
		return Identity{}, ErrUserNotFound
	}
	return identity, nil
}

// FetchTimeline issues a GraphQL timeline query and returns the raw response body.
// A body carrying the error marker is returned together with an *APIError.
func (client *Client) FetchTimeline(ctx context.Context, request TimelineRequest) ([]byte, error) {
	query := url.Values{queryVariables: {request.Variables}}
	if request.Features != "" {
		query.Set(queryFeatures, request.Features)
	}
	endpoint := client.webURL(fmt.Sprintf(graphQLPathFormat, request.QueryID, request.Operation), query)
	return client.do(ctx, apiRequest{method: http.MethodGet, endpoint: endpoint, contentType: contentTypeJSON})
}

func (client *Client) createTweet(ctx context.Context, variables createTweetVariables) error {
	payload := createTweetPayload{Variables: variables, Features: createTweetFeatures, QueryID: createTweetQueryID}
	endpoint := client.webURL(fmt.Sprintf(graphQLPathFormat, createTweetQueryID, createTweetOperation), nil)
	_, err := client.postJSON(ctx, endpoint, payload)
	return err
}

func (client *Client) uploadImage(ctx context.Context, path string, field string, image []byte) error {
	if len(image) == 0 {
		return ErrEmptyImage
	}
	form := url.Values{field: {base64.StdEncoding.EncodeToString(image)}, formSkipStatus: {formEnabled}}
	return client.postForm(ctx, client.apiURL(path, nil), form)
}

func (client *Client) postForm(ctx context.Context, endpoint string, form url.Values) error {
	_, err := client.do(ctx, apiRequest{
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        []byte(form.Encode()),
		contentType: contentTypeForm,
	})
	return err
}

func (client *Client) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return client.do(ctx, apiRequest{
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        encoded,
		contentType: contentTypeJSON,
	})
}

func newCreateTweetVariables(text string) createTweetVariables {
	return createTweetVariables{TweetText: text, SemanticAnnotationIDs: []string{}}
}

func (update ProfileUpdate) formValues() url.Values {
	form := url.Values{}
	setIfPresent(form, formName, update.Name)
	setIfPresent(form, formDescription, update.Description)
	setIfPresent(form, formLocation, update.Location)
	setIfPresent(form, formBirthdateDay, update.BirthdateDay)
	setIfPresent(form, formBirthdateMonth, update.BirthdateMonth)
	setIfPresent(form, formBirthdateYear, update.BirthdateYear)
	return form
}

func setIfPresent(form url.Values, key string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		form.Set(key, trimmed)
	}
}

func normalizeScreenName(screenName string) string {
	return strings.TrimPrefix(strings.TrimSpace(screenName), "@")
}
