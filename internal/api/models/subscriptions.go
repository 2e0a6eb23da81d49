package models

// SubscribeRequest registers an email for incident notifications.
// NotifyServices holds service slugs.
type SubscribeRequest struct {
	Email          string   `json:"email"`
	NotifyAll      bool     `json:"notifyAll"`
	NotifyMajor    bool     `json:"notifyMajor"`
	NotifyServices []string `json:"notifyServices,omitempty"`
}

// SubscriptionTokenRequest carries a verify or manage token.
type SubscriptionTokenRequest struct {
	Token string `json:"token"`
}

// SubscriptionAccepted is returned for every well-formed subscribe request,
// whether or not the address was already subscribed.
type SubscriptionAccepted struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Subscription is the state of a subscription after verify or unsubscribe.
type Subscription struct {
	Email          string   `json:"email"`
	Verified       bool     `json:"verified"`
	Unsubscribed   bool     `json:"unsubscribed"`
	NotifyAll      bool     `json:"notifyAll"`
	NotifyMajor    bool     `json:"notifyMajor"`
	NotifyServices []string `json:"notifyServices"`
}
