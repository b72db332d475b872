/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/quizbox/games/quiz"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

// statusOf maps coordinator error kinds onto HTTP statuses.
func statusOf(err error) int {
	switch quiz.KindOf(err) {
	case quiz.KindNotFound:
		return http.StatusNotFound
	case quiz.KindInvalidState, quiz.KindConflict:
		return http.StatusConflict
	case quiz.KindValidationFailed:
		return http.StatusBadRequest
	case quiz.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	body := errorBody{
		Kind:   quiz.KindOf(err).String(),
		Detail: err.Error(),
	}

	if status == http.StatusInternalServerError {
		// Storage errors stay in the log.
		body.Detail = "internal server error"
		fmt.Printf("%s | ERROR: %s %s: %v\n", time.Now().Format(logDate), r.Method, r.URL.Path, err)
	}

	var qe *quiz.Error
	if errors.As(err, &qe) {
		logf(cfg, "SERVE: Rejected %s %s from %s: %s", r.Method, r.URL.Path, realIP(r), qe.Reason)
	}

	writeJSON(w, status, body)
}
