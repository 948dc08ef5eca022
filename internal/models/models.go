package models

import "time"

type QueryStatus string

const (
	QueryProcessing QueryStatus = "processing"
	QueryCompleted  QueryStatus = "completed"
	QueryFailed     QueryStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s QueryStatus) Terminal() bool {
	return s == QueryCompleted || s == QueryFailed
}

type Source string

const (
	SourceTelegram Source = "telegram"
	SourceWeb      Source = "web"
)

type AgeRange string

const (
	Age40to45 AgeRange = "40-45"
	Age46to50 AgeRange = "46-50"
	Age50Plus AgeRange = "50+"
)

// ParseAgeRange returns the bucket for raw or false when raw is not one of them.
func ParseAgeRange(raw string) (AgeRange, bool) {
	switch AgeRange(raw) {
	case Age40to45, Age46to50, Age50Plus:
		return AgeRange(raw), true
	}
	return "", false
}

const (
	SubscriptionActive    = "active"
	SubscriptionInactive  = "inactive"
	SubscriptionCancelled = "cancelled"

	PlanFree = "free"
)

// ResponsePlaceholder is stored as response text while a query is processing.
const ResponsePlaceholder = "processing"

type User struct {
	ID                      string     `db:"id" json:"id"`
	TelegramID              *int64     `db:"telegram_id" json:"telegram_id,omitempty"`
	SubscriptionStatus      string     `db:"subscription_status" json:"subscription_status"`
	SubscriptionPlan        string     `db:"subscription_plan" json:"subscription_plan"`
	IsSubscribed            bool       `db:"is_subscribed" json:"is_subscribed"`
	AgeRange                *AgeRange  `db:"age_range" json:"age_range,omitempty"`
	City                    *string    `db:"city" json:"city,omitempty"`
	ConsentGivenAt          *time.Time `db:"consent_given_at" json:"consent_given_at,omitempty"`
	SubscriptionCancelledAt *time.Time `db:"subscription_cancelled_at" json:"subscription_cancelled_at,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// HasConsent reports whether the user accepted the data processing terms.
func (u *User) HasConsent() bool {
	return u != nil && u.ConsentGivenAt != nil
}

// HasActiveSubscription gates AI answers.
func (u *User) HasActiveSubscription() bool {
	return u != nil && u.SubscriptionStatus == SubscriptionActive
}

// HasVideoAccess gates the paid video catalog.
func (u *User) HasVideoAccess() bool {
	return u != nil && u.IsSubscribed && u.SubscriptionPlan != PlanFree
}

type Query struct {
	ID                string      `db:"id"`
	UserID            string      `db:"user_id"`
	QueryText         string      `db:"query_text"`
	ResponseText      string      `db:"response_text"`
	Status            QueryStatus `db:"status"`
	Source            Source      `db:"source"`
	TelegramMessageID *int64      `db:"telegram_message_id"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

const (
	ContentDoctorsExplain = "doctors_explain"
	AccessPaid1           = "paid1"
)

type Video struct {
	ID                string     `db:"id" json:"id"`
	Slug              string     `db:"slug" json:"slug"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	DoctorName        string     `db:"doctor_name" json:"doctor_name"`
	DoctorSpecialty   string     `db:"doctor_specialty" json:"doctor_specialty"`
	DoctorCredentials *string    `db:"doctor_credentials" json:"doctor_credentials,omitempty"`
	DurationSeconds   int        `db:"duration_seconds" json:"duration_seconds"`
	ContentType       string     `db:"content_type" json:"content_type"`
	AccessLevel       string     `db:"access_level" json:"access_level"`
	Published         bool       `db:"published" json:"published"`
	PublishedAt       *time.Time `db:"published_at" json:"published_at,omitempty"`
	Views             int        `db:"views" json:"views"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Minutes is the whole-minute duration shown in chat cards.
func (v Video) Minutes() int {
	return v.DurationSeconds / 60
}
