package autopilot

// ServoOverride is an RC_CHANNELS_OVERRIDE payload: eight
// PWM channel values, any of which may be left at NoChange to leave that
// channel under the autopilot's own control.
type ServoOverride [8]uint16

// NoChange is the RC_CHANNELS_OVERRIDE sentinel meaning "don't touch this
// channel" (MAVLink reserves 0 for it).
const NoChange uint16 = 0

// Channel indices this core drives. The remaining six channels are always
// sent as NoChange.
const (
	SteeringChannel = 0
	ThrottleChannel = 2
)

// PWMLimits bounds one channel's travel, expressed the way RC receivers are
// calibrated: a neutral center and independent forward/reverse extremes.
type PWMLimits struct {
	Neutral uint16
	FwdMin  uint16
	FwdMax  uint16
	RevMin  uint16
	RevMax  uint16
}

// ThrottlePWM maps a normalized speed in [-1, 1] to a PWM value. Zero maps
// to neutral exactly; otherwise the magnitude is scaled linearly between
// the direction's min and max travel.
func ThrottlePWM(speed float64, limits PWMLimits) uint16 {
	if speed == 0 {
		return limits.Neutral
	}

	min, max := limits.FwdMin, limits.FwdMax
	if speed < 0 {
		min, max = limits.RevMin, limits.RevMax
		speed = -speed
	}
	if speed > 1 {
		speed = 1
	}

	span := float64(max) - float64(min)
	return uint16(float64(min) + speed*span)
}

// SteeringPWM maps a normalized turning rate in [-1, 1] (positive = turn
// right) to a PWM value. Forward travel (speed > 0) negates the commanded
// turning; reversing or standing still passes it through unchanged —
// this sign asymmetry is load-bearing, not a bug.
func SteeringPWM(turning, speed float64, limits PWMLimits) uint16 {
	wheelTurning := turning
	if speed > 0 {
		wheelTurning = -turning
	}
	if wheelTurning > 1 {
		wheelTurning = 1
	} else if wheelTurning < -1 {
		wheelTurning = -1
	}

	neutral := float64(limits.Neutral)
	if wheelTurning >= 0 {
		return uint16(neutral + wheelTurning*(float64(limits.FwdMax)-neutral))
	}
	return uint16(neutral + wheelTurning*(neutral-float64(limits.RevMax)))
}

// Override builds the full eight-channel override from a normalized speed
// and turning rate, leaving every channel but steering/throttle untouched.
func Override(speed, turning float64, throttle, steering PWMLimits) ServoOverride {
	var o ServoOverride
	for i := range o {
		o[i] = NoChange
	}
	o[ThrottleChannel] = ThrottlePWM(speed, throttle)
	o[SteeringChannel] = SteeringPWM(turning, speed, steering)
	return o
}
