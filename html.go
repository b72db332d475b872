/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func homePage(cfg *Config) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(`<title>quizbox</title></head><body>`)
	b.WriteString(fmt.Sprintf("<h1>quizbox v%s</h1>", releaseVersion))
	b.WriteString(`<p>Create a quiz, start a game, then share its join code.</p><ul>`)

	for _, route := range []string{
		"POST /api/admin/quiz",
		"POST /api/game/start",
		"POST /api/game/join",
		"GET /ws/:code/:name",
		"GET /api/game/:code/leaderboard",
	} {
		method, path, _ := strings.Cut(route, " ")
		b.WriteString(fmt.Sprintf("<li><code>%s %s%s</code></li>", method, cfg.prefix, path))
	}

	b.WriteString(`</ul></body></html>`)

	return b.String()
}

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	page := homePage(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(page)))
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(page))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /api/
Disallow: /ws/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
