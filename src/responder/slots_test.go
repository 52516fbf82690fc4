package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractName(t *testing.T) {
	slots := ExtractSlots("Hi, my name is John and I need some help")
	assert.Equal(t, "John", slots["name"])

	slots = ExtractSlots("this is priya from the third floor")
	assert.Equal(t, "Priya", slots["name"])

	// "I'm calling" must not capture "calling" as a name.
	slots = ExtractSlots("I'm calling about my leaking tap")
	assert.Empty(t, slots["name"])
}

func TestExtractPhone(t *testing.T) {
	slots := ExtractSlots("you can reach me at 9876543210")
	assert.Equal(t, "9876543210", slots["phone"])

	slots = ExtractSlots("call 987-654-3210 please")
	assert.Equal(t, "9876543210", slots["phone"])

	slots = ExtractSlots("my flat number is 42")
	assert.Empty(t, slots["phone"])
}

func TestExtractServiceAndUrgency(t *testing.T) {
	slots := ExtractSlots("there's a pipe leaking in my apartment, it's an emergency")
	assert.Equal(t, "plumbing", slots["service_type"])
	assert.Equal(t, "apartment", slots["property_type"])
	assert.Equal(t, "high", slots["urgency"])

	slots = ExtractSlots("the wiring in my office needs checking, no rush")
	assert.Equal(t, "electrical", slots["service_type"])
	assert.Equal(t, "office", slots["property_type"])
	assert.Equal(t, "low", slots["urgency"])
}

func TestExtractDateAndTime(t *testing.T) {
	slots := ExtractSlots("can someone come tomorrow morning")
	assert.Equal(t, "tomorrow", slots["preferred_date"])
	assert.Equal(t, "morning", slots["preferred_time"])

	slots = ExtractSlots("this weekend in the evening works")
	assert.Equal(t, "weekend", slots["preferred_date"])
	assert.Equal(t, "evening", slots["preferred_time"])
}

func TestExtractNothing(t *testing.T) {
	slots := ExtractSlots("hmm let me think")
	assert.Empty(t, slots)
}
