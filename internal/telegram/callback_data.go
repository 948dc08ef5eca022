package telegram

import (
	"strings"

	"github.com/bezpauzy/eva-bot/internal/models"
)

const (
	dataConsentAgree   = "consent_agree"
	dataConsentDecline = "consent_decline"
	dataDoctor         = "doctor"
	dataAskAnother     = "select_another_topic"
	dataThankYou       = "Thank_you"
	dataPay            = "pay"
	dataPayAlias       = "oplata"
	dataVideoList      = "listen_podcast"
	dataVideoPrefix    = "video_"
	dataTopicPrefix    = "free_topic_"
)

type CallbackKind int

const (
	CallbackUnknown CallbackKind = iota
	CallbackConsentAgree
	CallbackConsentDecline
	CallbackAge
	CallbackFreeTopic
	CallbackDoctorThanks
	CallbackAskAnother
	CallbackThankYou
	CallbackPayment
	CallbackVideoList
	CallbackVideo
)

// CallbackIntent is the decoded meaning of an inline button press.
type CallbackIntent struct {
	Kind    CallbackKind
	Age     models.AgeRange
	Topic   Topic
	VideoID string
}

// ParseCallbackData maps raw callback data onto an intent. Unrecognised data
// yields CallbackUnknown.
func ParseCallbackData(raw string) CallbackIntent {
	switch raw {
	case dataConsentAgree:
		return CallbackIntent{Kind: CallbackConsentAgree}
	case dataConsentDecline:
		return CallbackIntent{Kind: CallbackConsentDecline}
	case dataDoctor:
		return CallbackIntent{Kind: CallbackDoctorThanks}
	case dataAskAnother:
		return CallbackIntent{Kind: CallbackAskAnother}
	case dataThankYou:
		return CallbackIntent{Kind: CallbackThankYou}
	case dataPay, dataPayAlias:
		return CallbackIntent{Kind: CallbackPayment}
	case dataVideoList:
		return CallbackIntent{Kind: CallbackVideoList}
	}

	if age, ok := models.ParseAgeRange(raw); ok {
		return CallbackIntent{Kind: CallbackAge, Age: age}
	}
	if rest, ok := strings.CutPrefix(raw, dataTopicPrefix); ok {
		switch topic := Topic(rest); topic {
		case TopicHotFlashes, TopicSleep, TopicMood, TopicWeight:
			return CallbackIntent{Kind: CallbackFreeTopic, Topic: topic}
		}
	}
	if id, ok := strings.CutPrefix(raw, dataVideoPrefix); ok && id != "" {
		return CallbackIntent{Kind: CallbackVideo, VideoID: id}
	}
	return CallbackIntent{Kind: CallbackUnknown}
}
