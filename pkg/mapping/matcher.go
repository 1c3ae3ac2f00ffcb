// SPDX-License-Identifier: Apache-2.0

package mapping

import "strings"

// TopicMatches reports whether a topic filter matches a concrete topic. Both
// are split into '/' delimited segments: a `+` segment matches exactly one
// topic segment of any content, a `#` segment matches the remainder of the
// topic and must be the final pattern segment. Without a trailing `#`, both
// segment sequences must end together.
//
// Following broker semantics, `#` also matches the parent level itself:
// "device/#" matches "device".
func TopicMatches(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	i := 0
	for ; i < len(patternParts) && i < len(topicParts); i++ {
		switch patternParts[i] {
		case "#":
			return true
		case "+":
		default:
			if patternParts[i] != topicParts[i] {
				return false
			}
		}
	}

	if i == len(topicParts) && i == len(patternParts)-1 && patternParts[i] == "#" {
		return true
	}
	return i == len(patternParts) && i == len(topicParts)
}

// FindMapping returns the first mapping, in declaration order, whose pattern
// matches the topic, or nil if none does.
func (c *Config) FindMapping(topic string) *TopicMapping {
	for i := range c.Mappings {
		if TopicMatches(c.Mappings[i].TopicPattern, topic) {
			return &c.Mappings[i]
		}
	}
	return nil
}
