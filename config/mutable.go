// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package config

import "github.com/pkg/errors"

func CreateBucket(clonedCfg *ServiceConfig, b *BucketConfig) error {
	if b == nil || b.Name == "" {
		return errors.New("bucket name cannot be nil or empty")
	}

	if b.Name == DefaultBucketName || b.Name == DynamicBucketTemplateName {
		if BucketByName(clonedCfg, b.Name) != nil {
			return errors.New("bucket " + b.Name + " already exists")
		}

		return UpdateBucket(clonedCfg, b)
	}

	if clonedCfg.Buckets[b.Name] != nil {
		return errors.New("bucket " + b.Name + " already exists")
	}

	return AddBucket(clonedCfg, b)
}

func UpdateBucket(clonedCfg *ServiceConfig, b *BucketConfig) error {
	if b == nil || b.Name == "" {
		return errors.New("bucket name cannot be nil or empty")
	}

	switch b.Name {
	case DefaultBucketName:
		SetDefaultBucket(clonedCfg, b)
	case DynamicBucketTemplateName:
		SetDynamicBucketTemplate(clonedCfg, b)
	default:
		return AddBucket(clonedCfg, b)
	}

	return nil
}

func DeleteBucket(clonedCfg *ServiceConfig, name string) error {
	if BucketByName(clonedCfg, name) == nil {
		return errors.New("no such bucket " + name)
	}

	switch name {
	case DefaultBucketName:
		clonedCfg.DefaultBucket = nil
	case DynamicBucketTemplateName:
		clonedCfg.DynamicBucketTemplate = nil
	default:
		delete(clonedCfg.Buckets, name)
	}

	return nil
}

// BucketByName returns the config for name, which may be DefaultBucketName or
// DynamicBucketTemplateName, or nil.
func BucketByName(cfg *ServiceConfig, name string) *BucketConfig {
	switch name {
	case DefaultBucketName:
		return cfg.DefaultBucket
	case DynamicBucketTemplateName:
		return cfg.DynamicBucketTemplate
	default:
		return cfg.Buckets[name]
	}
}
