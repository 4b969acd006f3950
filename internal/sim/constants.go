// Package sim is the fixed-rate simulation: needs decay, movement
// integration, law enforcement, the economy timers, and the scheduler that
// drives them. All tuning values are baked constants; they are part of the
// world's identity, not deployment configuration.
package sim

import "time"

// Tick rates.
const (
	PositionTick = 33 * time.Millisecond  // 30 Hz: path follow + integration
	SimTick      = 100 * time.Millisecond // 10 Hz: needs, law, perception
	SaveEvery    = 30 * time.Second
	RequestTTL   = 30 * time.Second
)

// Movement.
const (
	WalkSpeed       = 90.0  // px/s
	RunSpeed        = 180.0 // px/s
	HitboxHalf      = 11.0  // px; tile is 32
	WaypointRadius  = 16.0  // px, advance to next waypoint inside this
	MaxBlockedTicks = 30    // consecutive blocked position ticks before path cancel
)

// Needs rates, per real second.
const (
	HungerDecay   = 0.030
	ThirstDecay   = 0.045
	BladderFill   = 0.035
	SocialDecay   = 0.025
	EnergyPassive = 0.020

	WalkCostPerPx = 0.002
	RunCostPerPx  = 0.005

	SleepRecovery    = 0.25
	SleepRecoveryBag = 0.40
	AutoWakeEnergy   = 80.0

	HealthDrainHunger = 0.10
	HealthDrainThirst = 0.15
	HealthDrainSocial = 0.02
	HealthRecovery    = 0.05
	RecoveryThreshold = 30.0

	BladderAccidentReset = 50.0
	BladderAccidentFine  = 5
)

// Social proximity and conversation.
const (
	SocialRadius        = 128.0 // px
	SocialRefreshTicks  = 10    // refresh NearbyAwake every Nth sim tick
	ConversationWindow  = 30 * time.Second
	StrongSocialBonus   = 0.70
	WeakSocialBonus     = 0.30
	SocialRecoveryRate  = 0.50 // per real second while conversing
	ConversingEnergyUp  = 0.01
	ConversationRange   = 128.0 // px, listener distance for the window bonus
)

// Speech. Audibility ranges live with the perception package; sim only owns
// the pacing and energy costs.
const (
	SpeakCooldown   = time.Second
	DuplicateWindow = 30 * time.Second
	TurnTimeout     = 30 * time.Second
	ShoutEnergyCost = 2.0
	SpeakEnergyCost = 0.5
)

// Law.
const (
	LoiterRadius     = 48.0
	LoiterThreshold  = 1800 // world-seconds inside the anchor radius
	ArrestRange      = 96.0
	ArrestEnergyCost = 10.0
	BookingBounty    = 50
	SentenceSecs     = 7200 // world-seconds
)

// Economy.
const (
	UBIAmount       = 100
	UBICooldownSecs = 24 * 3600 // game-hours in world-seconds
	ShiftSecs       = 3600      // world-seconds on shift before the wage pays
	RestockSecs     = 8 * 3600
	TrainSecs       = 3600

	GiveRange      = 96.0 // px, trade/give proximity
	ForageRange    = 96.0
	BodyRange      = 96.0 // collect_body reach
	BodyProcessFee = 30   // paid to the mortician per processed body
	ReferralBonus  = 25   // per matured referral claimed
)

// Pain tier thresholds; health uses its own set.
const (
	PainMild   = 30.0
	PainSevere = 15.0
	PainAgony  = 5.0

	HealthPainMild   = 50.0
	HealthPainSevere = 25.0
	HealthPainAgony  = 10.0

	PainCooldown = 30 * time.Second
)

// Reflection milestones, wall-clock.
const (
	SurvivalMilestone = 30 * time.Minute
	PeriodicReflect   = 30 * time.Minute
)
