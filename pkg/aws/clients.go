package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/anirudhbiyani/cloud-provision/pkg/provision"
)

// S3Client abstracts the bucket operations the provisioner needs.
type S3Client interface {
	// CreateBucket creates the bucket in the region. An existing bucket
	// yields a conflict provisioning error.
	CreateBucket(ctx context.Context, name, region string) error

	// ListObjects returns up to max object keys in the bucket.
	ListObjects(ctx context.Context, bucket string, max int32) ([]string, error)
}

// IamClient abstracts the role operations the provisioner needs.
type IamClient interface {
	// GetCallerArn returns the ARN of the current IAM user.
	GetCallerArn(ctx context.Context) (string, error)

	// CreateRole creates a role with the given trust policy and returns its
	// ARN. An existing role yields a conflict provisioning error.
	CreateRole(ctx context.Context, name, description, trustPolicy string) (string, error)

	// GetRole returns the ARN of an existing role. A missing role yields a
	// not_found provisioning error.
	GetRole(ctx context.Context, name string) (string, error)

	// PutRolePolicy attaches an inline policy to the role.
	PutRolePolicy(ctx context.Context, roleName, policyName, policy string) error

	// DeleteRolePolicy removes an inline policy. A missing policy yields a
	// not_found provisioning error.
	DeleteRolePolicy(ctx context.Context, roleName, policyName string) error

	// DeleteRole deletes the role. A missing role yields a not_found
	// provisioning error.
	DeleteRole(ctx context.Context, roleName string) error
}

// StsClient abstracts temporary credential issuance.
type StsClient interface {
	// AssumeRole returns temporary credentials for the role.
	AssumeRole(ctx context.Context, roleArn, sessionName string) (*AwsTemporarySecretToken, error)
}

// Clients bundles the three AWS service clients one provision needs.
type Clients struct {
	S3  S3Client
	Iam IamClient
	Sts StsClient
}

// NewClients builds SDK-backed clients. Static credentials from the data
// address take precedence over the default credential chain.
func NewClients(ctx context.Context, region string, address provision.DataAddress) (*Clients, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if keyID := address.Property(PropAccessKeyID); keyID != "" {
		secret := address.Property(PropSecretAccessKey)
		if secret == "" {
			return nil, provision.ErrCredential("access key id provided without secret access key").
				WithProvider(StoreType)
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, provision.ErrCredential("failed to load aws configuration").
			WithProvider(StoreType).
			WithCause(err)
	}

	return &Clients{
		S3:  &sdkS3Client{client: s3.NewFromConfig(cfg)},
		Iam: &sdkIamClient{client: iam.NewFromConfig(cfg)},
		Sts: &sdkStsClient{client: sts.NewFromConfig(cfg)},
	}, nil
}

type sdkS3Client struct {
	client *s3.Client
}

// CreateBucket implements S3Client.
func (c *sdkS3Client) CreateBucket(ctx context.Context, name, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}

	_, err := c.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return provision.ErrConflict("bucket", name).WithCause(err)
		}
		return err
	}
	return nil
}

// ListObjects implements S3Client.
func (c *sdkS3Client) ListObjects(ctx context.Context, bucket string, max int32) ([]string, error) {
	resp, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(max),
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(resp.Contents))
	for _, object := range resp.Contents {
		keys = append(keys, aws.ToString(object.Key))
	}
	return keys, nil
}

type sdkIamClient struct {
	client *iam.Client
}

// GetCallerArn implements IamClient.
func (c *sdkIamClient) GetCallerArn(ctx context.Context) (string, error) {
	resp, err := c.client.GetUser(ctx, &iam.GetUserInput{})
	if err != nil {
		return "", err
	}
	return aws.ToString(resp.User.Arn), nil
}

// CreateRole implements IamClient.
func (c *sdkIamClient) CreateRole(ctx context.Context, name, description, trustPolicy string) (string, error) {
	resp, err := c.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		Description:              aws.String(description),
		AssumeRolePolicyDocument: aws.String(trustPolicy),
	})
	if err != nil {
		var exists *iamtypes.EntityAlreadyExistsException
		if errors.As(err, &exists) {
			return "", provision.ErrConflict("role", name).WithCause(err)
		}
		return "", err
	}
	return aws.ToString(resp.Role.Arn), nil
}

// GetRole implements IamClient.
func (c *sdkIamClient) GetRole(ctx context.Context, name string) (string, error) {
	resp, err := c.client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		var missing *iamtypes.NoSuchEntityException
		if errors.As(err, &missing) {
			return "", provision.ErrNotFound("role", name).WithCause(err)
		}
		return "", err
	}
	return aws.ToString(resp.Role.Arn), nil
}

// PutRolePolicy implements IamClient.
func (c *sdkIamClient) PutRolePolicy(ctx context.Context, roleName, policyName, policy string) error {
	_, err := c.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(policy),
	})
	return err
}

// DeleteRolePolicy implements IamClient.
func (c *sdkIamClient) DeleteRolePolicy(ctx context.Context, roleName, policyName string) error {
	_, err := c.client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		var missing *iamtypes.NoSuchEntityException
		if errors.As(err, &missing) {
			return provision.ErrNotFound("role_policy", policyName).WithCause(err)
		}
		return err
	}
	return nil
}

// DeleteRole implements IamClient.
func (c *sdkIamClient) DeleteRole(ctx context.Context, roleName string) error {
	_, err := c.client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		var missing *iamtypes.NoSuchEntityException
		if errors.As(err, &missing) {
			return provision.ErrNotFound("role", roleName).WithCause(err)
		}
		return err
	}
	return nil
}

type sdkStsClient struct {
	client *sts.Client
}

// AssumeRole implements StsClient.
func (c *sdkStsClient) AssumeRole(ctx context.Context, roleArn, sessionName string) (*AwsTemporarySecretToken, error) {
	resp, err := c.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(3600),
	})
	if err != nil {
		return nil, err
	}

	creds := resp.Credentials
	if creds == nil {
		return nil, fmt.Errorf("assume role returned no credentials")
	}

	var expiration int64
	if creds.Expiration != nil {
		expiration = creds.Expiration.UnixMilli()
	}

	return &AwsTemporarySecretToken{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiration:      expiration,
	}, nil
}
