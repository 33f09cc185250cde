package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistencia_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"result"})

	attendanceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistencia_attendance_attempts_total",
		Help: "Attendance challenge submissions by outcome.",
	}, []string{"result"})

	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asistencia_challenges_issued_total",
		Help: "Digit challenges generated, including rotations after each attempt.",
	})
)
