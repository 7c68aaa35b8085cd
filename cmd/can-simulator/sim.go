package main

import (
	"math"
	"sync"
)

// Drive-cycle constants. One cycle: accelerate, cruise, brake, idle.
const (
	accelSeconds  = 30.0
	cruiseSeconds = 20.0
	brakeSeconds  = 15.0
	idleSeconds   = 10.0
	cycleSeconds  = accelSeconds + cruiseSeconds + brakeSeconds + idleSeconds

	cruiseSpeedKPH = 90.0

	nominalVoltage = 400.0
	sagPerKPH      = 0.35 // voltage sag under traction load
	voltageRipple  = 1.5

	ambientTempC   = 25.0
	heatPerKPHSec  = 0.02 // motor heating proportional to speed
	coolRatePerSec = 0.25 // Newtonian cooling toward ambient
)

// driveCycle produces plausible CAN readings for the mock gateway.
type driveCycle struct {
	mu        sync.Mutex
	elapsed   float64
	speed     float64
	voltage   float64
	motorTemp float64
}

func newDriveCycle() *driveCycle {
	return &driveCycle{
		voltage:   nominalVoltage,
		motorTemp: ambientTempC,
	}
}

// step advances the simulation by dt seconds.
func (d *driveCycle) step(dt float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elapsed += dt
	phase := math.Mod(d.elapsed, cycleSeconds)

	switch {
	case phase < accelSeconds:
		d.speed = cruiseSpeedKPH * (phase / accelSeconds)
	case phase < accelSeconds+cruiseSeconds:
		d.speed = cruiseSpeedKPH
	case phase < accelSeconds+cruiseSeconds+brakeSeconds:
		braked := (phase - accelSeconds - cruiseSeconds) / brakeSeconds
		d.speed = cruiseSpeedKPH * (1 - braked)
	default:
		d.speed = 0
	}

	d.voltage = nominalVoltage - sagPerKPH*d.speed + voltageRipple*math.Sin(d.elapsed)

	// heat with speed, cool toward ambient
	d.motorTemp += heatPerKPHSec * d.speed * dt
	d.motorTemp -= coolRatePerSec * dt * (d.motorTemp - ambientTempC) / (100 - ambientTempC + 1)
	if d.motorTemp < ambientTempC {
		d.motorTemp = ambientTempC
	}
}

// readings returns the current values, rounded to one decimal the way the
// real gateway publishes them.
func (d *driveCycle) readings() (speed, voltage, motorTemp float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return round1(d.speed), round1(d.voltage), round1(d.motorTemp)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
