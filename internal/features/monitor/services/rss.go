package services

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	hotmodels "hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/monitor/models"
)

func renderRSS(def models.MonitorDefinition, topics []models.MonitorTopic, requestURL string, now time.Time) (string, error) {
	channel := &feeds.Feed{
		Title:       "监测：" + def.Name,
		Link:        &feeds.Link{Href: requestURL},
		Description: "热榜监测（选题库）：" + def.Name,
		Updated:     now.UTC(),
	}

	for _, topic := range topics {
		link := topicLink(topic, requestURL)
		channel.Items = append(channel.Items, &feeds.Item{
			Title:       topic.Title,
			Link:        &feeds.Link{Href: link},
			Id:          link,
			Description: topicDescription(topic),
			Created:     topic.LastSeenAt,
		})
	}

	body, err := channel.ToRss()
	if err != nil {
		return "", fmt.Errorf("render monitor %s rss: %w", def.ID, err)
	}
	return body, nil
}

func topicLink(topic models.MonitorTopic, requestURL string) string {
	switch {
	case topic.URL != "":
		return topic.URL
	case topic.MobileURL != "":
		return topic.MobileURL
	default:
		return requestURL + "#" + strings.ReplaceAll(url.QueryEscape(topic.Key), "+", "%20")
	}
}

func topicDescription(topic models.MonitorTopic) string {
	parts := []string{
		fmt.Sprintf("score=%.3f", topic.Score),
		fmt.Sprintf("last24hSeenCount=%d", topic.Last24hSeenCount),
	}

	var names []string
	for _, source := range topic.Sources {
		if def, ok := hotmodels.LookupSource(source); ok {
			names = append(names, def.Title)
		} else {
			names = append(names, source)
		}
	}
	if len(names) > 0 {
		parts = append(parts, "sources="+strings.Join(names, " / "))
	}
	if len(topic.MatchReason) > 0 {
		parts = append(parts, "match="+strings.Join(topic.MatchReason, ","))
	}

	desc := strings.Join(parts, " ")
	if topic.Desc != "" {
		desc += "\n\n" + topic.Desc
	}
	return desc
}
