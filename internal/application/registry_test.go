package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/usagepanel/internal/application"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

func TestRegistry_GetReturnsRegisteredAdapter(t *testing.T) {
	adapter := &countingAdapter{provider: model.ProviderOpenAI}
	reg := application.NewRegistry(adapter)

	got, err := reg.Get(model.ProviderOpenAI)
	require.NoError(t, err)
	assert.Same(t, adapter, got)

	_, err = reg.Get(model.ProviderGemini)
	require.ErrorIs(t, err, model.ErrUnknownProvider)
}

func TestRegistry_ReplaceSwapsAdapter(t *testing.T) {
	original := &countingAdapter{provider: model.ProviderOpenAI}
	replacement := &countingAdapter{provider: model.ProviderOpenAI}
	reg := application.NewRegistry(original)

	reg.Replace(replacement)

	got, err := reg.Get(model.ProviderOpenAI)
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}

func TestRegistry_ProvidersInDisplayOrder(t *testing.T) {
	reg := application.NewRegistry(
		&countingAdapter{provider: model.ProviderGemini},
		&countingAdapter{provider: model.ProviderOpenAI},
	)

	assert.Equal(t, []model.ProviderID{model.ProviderOpenAI, model.ProviderGemini}, reg.Providers())
}

func TestRegistry_ConcurrentGetReplaceSafety(t *testing.T) {
	a1 := &countingAdapter{provider: model.ProviderAnthropic}
	a2 := &countingAdapter{provider: model.ProviderAnthropic}
	reg := application.NewRegistry(a1)

	const goroutines = 100
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	for i := range goroutines {
		go func() {
			defer wg.Done()
			got, err := reg.Get(model.ProviderAnthropic)
			assert.NoError(t, err)
			assert.NotNil(t, got)
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				reg.Replace(a1)
			} else {
				reg.Replace(a2)
			}
		}()
	}

	wg.Wait()
}
